package voice

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
)

type fakeLookup struct {
	calls [][]string
	urls  map[string]string
	err   error
}

func (f *fakeLookup) ResolveVoiceURLs(_ context.Context, _ string, ids []string) (map[string]string, error) {
	cp := append([]string(nil), ids...)
	sort.Strings(cp)
	f.calls = append(f.calls, cp)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string)
	for _, id := range ids {
		if u, ok := f.urls[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func voiceMsg(id, voiceID string) model.Message {
	return model.Message{ID: id, ChatID: "c", Type: model.TypeVoice, Content: model.Content{Voice: &model.VoiceContent{VoiceID: voiceID}}}
}

func textMsg(id string) model.Message {
	return model.Message{ID: id, ChatID: "c", Type: model.TypeText, Content: model.Content{Text: "hi"}}
}

func TestResolveBatchesLookups(t *testing.T) {
	f := &fakeLookup{urls: map[string]string{"v1": "https://x/v1.m4a", "v2": "https://x/v2.m4a"}}
	r := NewResolver(f, time.Minute, nil)

	in := []model.Message{voiceMsg("m1", "v1"), textMsg("m2"), voiceMsg("m3", "v2"), voiceMsg("m4", "unknown")}
	out := r.Resolve(context.Background(), in, "acc")

	if len(f.calls) != 1 {
		t.Fatalf("lookup called %d times, want 1 batched call", len(f.calls))
	}
	if got := f.calls[0]; len(got) != 3 {
		t.Errorf("batch = %v, want 3 ids", got)
	}
	if out[0].VoiceURL != "https://x/v1.m4a" || out[2].VoiceURL != "https://x/v2.m4a" {
		t.Errorf("urls not populated: %+v", out)
	}
	if out[1] != in[1] || out[3].VoiceURL != "" {
		t.Error("unresolvable messages were modified")
	}
	if in[0].VoiceURL != "" {
		t.Error("input slice was mutated")
	}
}

func TestResolveFailureReturnsInput(t *testing.T) {
	f := &fakeLookup{err: errors.New("boom")}
	r := NewResolver(f, time.Minute, nil)
	in := []model.Message{voiceMsg("m1", "v1")}

	out := r.Resolve(context.Background(), in, "acc")
	if len(out) != 1 || out[0].VoiceURL != "" {
		t.Errorf("out = %+v, want original input", out)
	}
}

func TestResolveUsesCacheUntilExpiry(t *testing.T) {
	now := time.Now()
	f := &fakeLookup{urls: map[string]string{"v1": "u1"}}
	r := NewResolver(f, time.Minute, nil)
	r.now = func() time.Time { return now }

	r.Resolve(context.Background(), []model.Message{voiceMsg("m1", "v1")}, "acc")
	out := r.Resolve(context.Background(), []model.Message{voiceMsg("m9", "v1")}, "acc")
	if len(f.calls) != 1 {
		t.Errorf("lookup called %d times, want 1 (cached)", len(f.calls))
	}
	if out[0].VoiceURL != "u1" {
		t.Errorf("cached url = %q, want u1", out[0].VoiceURL)
	}

	now = now.Add(2 * time.Minute)
	r.Resolve(context.Background(), []model.Message{voiceMsg("m1", "v1")}, "acc")
	if len(f.calls) != 2 {
		t.Errorf("lookup called %d times, want 2 after expiry", len(f.calls))
	}
}

func TestResolveNoVoiceSkipsLookup(t *testing.T) {
	f := &fakeLookup{}
	r := NewResolver(f, 0, nil)
	r.Resolve(context.Background(), []model.Message{textMsg("m1")}, "acc")
	if len(f.calls) != 0 {
		t.Errorf("lookup called %d times for text-only input", len(f.calls))
	}
}
