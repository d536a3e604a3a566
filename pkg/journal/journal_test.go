package journal

import "testing"

func TestV1StreamingDoesNotTouchContentUntilFinalize(t *testing.T) {
	j := New("s1")
	require(t, j.Append(Message{ID: "m1", Role: RoleAssistant, Format: FormatV1}))

	require(t, j.AppendChunk("m1", "Hel"))
	require(t, j.AppendChunk("m1", "lo"))

	m, _ := j.Get("m1")
	if m.Content != "" {
		t.Fatalf("expected v1 content to stay empty until finalize, got %q", m.Content)
	}

	require(t, j.FinalizeStreaming("m1"))
	m, _ = j.Get("m1")
	if m.Content != "Hello" {
		t.Fatalf("expected finalized content %q, got %q", "Hello", m.Content)
	}
}

func TestV2StreamingExtendsLastPartInPlace(t *testing.T) {
	j := New("s1")
	require(t, j.Append(Message{ID: "m1", Role: RoleAssistant, Format: FormatV2}))

	require(t, j.AppendChunk("m1", "Hel"))
	require(t, j.AppendChunk("m1", "lo"))

	m, _ := j.Get("m1")
	if len(m.Parts) != 1 {
		t.Fatalf("expected exactly one streaming text part, got %d", len(m.Parts))
	}
	if m.Parts[0].Text != "Hello" || !m.Parts[0].Streaming {
		t.Fatalf("unexpected part: %+v", m.Parts[0])
	}

	require(t, j.FinalizeStreaming("m1"))
	m, _ = j.Get("m1")
	if m.Parts[0].Streaming {
		t.Fatalf("expected streaming flag cleared after finalize")
	}
}

func TestContentWinsRejectsShorterUpdate(t *testing.T) {
	j := New("s1")
	require(t, j.Append(Message{ID: "m1", Role: RoleAssistant, Content: "Hello world", Format: FormatV1}))

	shorter := "Hi"
	_, err := j.Update("m1", Patch{Content: &shorter})
	require(t, err)

	m, _ := j.Get("m1")
	if m.Content != "Hello world" {
		t.Fatalf("content-wins violated: got %q", m.Content)
	}

	longer := "Hello world, extended"
	_, err = j.Update("m1", Patch{Content: &longer})
	require(t, err)
	m, _ = j.Get("m1")
	if m.Content != longer {
		t.Fatalf("expected longer update to win, got %q", m.Content)
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	j := New("s1")
	require(t, j.Append(Message{ID: "m1", Role: RoleUser}))
	if err := j.Append(Message{ID: "m1", Role: RoleUser}); err == nil {
		t.Fatalf("expected duplicate append to fail")
	}
}

func TestListPreservesAppendOrder(t *testing.T) {
	j := New("s1")
	require(t, j.Append(Message{ID: "m1", Role: RoleUser}))
	require(t, j.Append(Message{ID: "m2", Role: RoleAssistant}))
	require(t, j.Append(Message{ID: "m3", Role: RoleUser}))

	list := j.List()
	if len(list) != 3 || list[0].ID != "m1" || list[1].ID != "m2" || list[2].ID != "m3" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestRemove(t *testing.T) {
	j := New("s1")
	require(t, j.Append(Message{ID: "m1"}))
	require(t, j.Append(Message{ID: "m2"}))
	j.Remove([]string{"m1"})
	if j.Len() != 1 {
		t.Fatalf("expected 1 message after remove, got %d", j.Len())
	}
	if _, ok := j.Get("m1"); ok {
		t.Fatalf("expected m1 to be removed")
	}
}

func require(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
