package catalog

import (
	"strings"
	"testing"

	"slot-shop/internal/store"
)

func TestRenderCaption(t *testing.T) {
	desc := "Lightweight mesh upper"
	slot := &store.Slot{
		ID:          3,
		Name:        "Runner 2000",
		Photo:       "photo",
		Sizes:       "41, 42,42,",
		Price:       "4500",
		Description: &desc,
	}

	caption := RenderCaption(slot)
	if !strings.Contains(caption, "Runner 2000") {
		t.Fatalf("caption missing name: %q", caption)
	}
	// Sizes are normalized: trimmed, deduplicated.
	if !strings.Contains(caption, "Sizes: 41, 42\n") {
		t.Fatalf("caption sizes wrong: %q", caption)
	}
	if !strings.Contains(caption, "Price: 4500₽") {
		t.Fatalf("caption price wrong: %q", caption)
	}
	if !strings.Contains(caption, desc) {
		t.Fatalf("caption missing description: %q", caption)
	}
}

func TestRenderCaptionSoldOut(t *testing.T) {
	slot := &store.Slot{ID: 3, Name: "Runner 2000", Photo: "photo", Sizes: "", Price: "4500"}

	caption := RenderCaption(slot)
	if !strings.Contains(caption, "Sizes: Sold out") {
		t.Fatalf("empty set must render as sold out: %q", caption)
	}
}
