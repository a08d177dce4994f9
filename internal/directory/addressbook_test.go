package directory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"citydir/internal/model"
)

func TestAddressBook_StrictRejectsSecondRegistration(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(ModeStrict)
	first := model.CityMetadata{Name: "springfield", ID: "1", Map: "m1", Address: "127.0.0.1:9001"}
	second := model.CityMetadata{Name: "springfield", ID: "2", Map: "m2", Address: "127.0.0.1:9002"}

	if err := b.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := b.Register(second)
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("err=%v", err)
	}
	got, ok := b.Resolve("springfield")
	if !ok || got != first {
		t.Fatalf("got=%+v ok=%v", got, ok)
	}
}

func TestAddressBook_OverwriteReplacesEntry(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(ModeOverwrite)
	first := model.CityMetadata{Name: "springfield", ID: "1", Map: "m1", Address: "127.0.0.1:9001"}
	second := model.CityMetadata{Name: "springfield", ID: "2", Address: "127.0.0.1:9002"}

	if err := b.Register(first); err != nil {
		t.Fatalf("Register #1: %v", err)
	}
	if err := b.Register(second); err != nil {
		t.Fatalf("Register #2: %v", err)
	}
	got, _ := b.Resolve("springfield")
	// Map is empty on the second registration and must not be carried over.
	if got != second {
		t.Fatalf("got=%+v", got)
	}
	if b.Len() != 1 {
		t.Fatalf("len=%d", b.Len())
	}
}

func TestAddressBook_RejectsMissingFields(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(ModeStrict)
	cases := []model.CityMetadata{
		{ID: "1", Address: "127.0.0.1:1"},
		{Name: "a", Address: "127.0.0.1:1"},
		{Name: "a", ID: "1"},
	}
	for _, meta := range cases {
		if err := b.Register(meta); !errors.Is(err, ErrInvalidMetadata) {
			t.Fatalf("meta=%+v err=%v", meta, err)
		}
	}
	if b.Len() != 0 {
		t.Fatalf("len=%d", b.Len())
	}
}

func TestAddressBook_ListHasOneEntryPerName(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(ModeOverwrite)
	regs := []model.CityMetadata{
		{Name: "b", ID: "2", Address: "h:2"},
		{Name: "a", ID: "1", Address: "h:1"},
		{Name: "b", ID: "3", Address: "h:3"},
	}
	for _, meta := range regs {
		if err := b.Register(meta); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	list := b.List()
	if len(list) != 2 {
		t.Fatalf("list=%+v", list)
	}
	if list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("order=%+v", list)
	}
	if list[1].ID != "3" {
		t.Fatalf("b not latest: %+v", list[1])
	}

	// The snapshot is a copy.
	list[0].Address = "changed"
	if got, _ := b.Resolve("a"); got.Address != "h:1" {
		t.Fatalf("snapshot aliased: %+v", got)
	}
}

func TestAddressBook_ConcurrentDistinctNames(t *testing.T) {
	t.Parallel()

	const n = 64
	b := NewAddressBook(ModeStrict)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta := model.CityMetadata{
				Name:    fmt.Sprintf("city-%d", i),
				ID:      fmt.Sprintf("id-%d", i),
				Address: fmt.Sprintf("127.0.0.1:%d", 9000+i),
			}
			if err := b.Register(meta); err != nil {
				t.Errorf("Register %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, ok := b.Resolve(fmt.Sprintf("city-%d", i))
			if !ok {
				t.Errorf("city-%d missing", i)
				return
			}
			if got.ID != fmt.Sprintf("id-%d", i) || got.Address != fmt.Sprintf("127.0.0.1:%d", 9000+i) {
				t.Errorf("city-%d=%+v", i, got)
			}
		}(i)
	}
	wg.Wait()

	if b.Len() != n {
		t.Fatalf("len=%d", b.Len())
	}
}

func TestParseRegistrationMode(t *testing.T) {
	t.Parallel()

	if m, err := ParseRegistrationMode(""); err != nil || m != ModeStrict {
		t.Fatalf("empty=%q err=%v", m, err)
	}
	if m, err := ParseRegistrationMode(" Overwrite "); err != nil || m != ModeOverwrite {
		t.Fatalf("overwrite=%q err=%v", m, err)
	}
	if _, err := ParseRegistrationMode("merge"); err == nil {
		t.Fatalf("expected error")
	}
}
