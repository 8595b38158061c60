package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/choreo/store"
	"github.com/xraph/choreo/store/memory"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "revision", false},
		{"revision", "revision", false},
		{"none", "none", false},
		{"optimistic", "", true},
	}
	for _, tt := range tests {
		g, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Parse(%q) error = %v", tt.in, err)
		}
		if err == nil && g.Name() != tt.want {
			t.Fatalf("Parse(%q) = %s, want %s", tt.in, g.Name(), tt.want)
		}
	}
}

func TestSaveAtStaleRevision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		guard    Guard
		wantErr  error
		wantRev  int64
		wantBody string
	}{
		{None{}, nil, 3, `{"v":"late"}`},
		{Revision{}, store.ErrConflict, 2, `{"v":"first"}`},
	}

	for _, tt := range tests {
		t.Run(tt.guard.Name(), func(t *testing.T) {
			t.Parallel()
			s := memory.New()
			read, _ := s.Put(ctx, store.Document{ID: "routing/tasks/1", Body: []byte(`{"v":"seed"}`)})
			_, _ = s.Put(ctx, store.Document{ID: "routing/tasks/1", Body: []byte(`{"v":"first"}`)})

			// A second writer saves what it read at the older revision.
			_, err := tt.guard.Save(ctx, s, store.Document{
				ID: "routing/tasks/1", Body: []byte(`{"v":"late"}`), Revision: read.Revision,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Save error = %v, want %v", err, tt.wantErr)
			}

			got, _ := s.Get(ctx, "routing/tasks/1")
			if got.Revision != tt.wantRev || string(got.Body) != tt.wantBody {
				t.Fatalf("stored %s@%d, want %s@%d", got.Body, got.Revision, tt.wantBody, tt.wantRev)
			}
		})
	}
}
