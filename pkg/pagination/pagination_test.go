package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=0", DefaultLimit, 0},
		{"limit=-5&offset=-3", DefaultLimit, 0},
		{"limit=100000", MaxLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("query %q: got limit=%d offset=%d, want %d/%d", tt.query, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestSlice(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	if got := Slice(items, Params{Limit: 2, Offset: 0}); len(got) != 2 || got[0] != "a" {
		t.Errorf("first page: got %v", got)
	}
	if got := Slice(items, Params{Limit: 2, Offset: 4}); len(got) != 1 || got[0] != "e" {
		t.Errorf("last page: got %v", got)
	}
	if got := Slice(items, Params{Limit: 2, Offset: 10}); got == nil || len(got) != 0 {
		t.Errorf("past the end should be an empty slice, got %v", got)
	}
}

func TestPaginate(t *testing.T) {
	resp := Paginate([]int{1, 2, 3}, Params{Limit: 2, Offset: 0})
	if resp.Total != 3 || !resp.HasMore {
		t.Errorf("unexpected response %+v", resp)
	}
	resp = Paginate([]int{1, 2, 3}, Params{Limit: 2, Offset: 2})
	if resp.HasMore {
		t.Error("expected no more pages")
	}
}

func TestParamsNavigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	if !p.HasNext(25) {
		t.Error("expected next page")
	}
	if p.HasNext(20) {
		t.Error("expected no next page")
	}
	if p.NextOffset() != 20 {
		t.Errorf("expected next offset 20, got %d", p.NextOffset())
	}
}
