package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/dictaflow/pkg/provider/stt"
	sttmock "github.com/MrWong99/dictaflow/pkg/provider/stt/mock"
)

func TestSTTFallback_PrimarySucceeds(t *testing.T) {
	primary := &sttmock.Transcriber{Default: stt.Result{Text: "from primary"}}
	backup := &sttmock.Transcriber{Default: stt.Result{Text: "from backup"}}

	f := NewSTTFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	res, err := f.Transcribe(context.Background(), stt.Request{})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "from primary" {
		t.Errorf("text = %q, want from primary", res.Text)
	}
	if backup.CallCount() != 0 {
		t.Errorf("backup called %d times, want 0", backup.CallCount())
	}
}

func TestSTTFallback_FailsOverToBackup(t *testing.T) {
	primary := &sttmock.Transcriber{Errs: []error{errTest}}
	backup := &sttmock.Transcriber{Default: stt.Result{Text: "from backup"}}

	f := NewSTTFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	res, err := f.Transcribe(context.Background(), stt.Request{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "from backup" {
		t.Errorf("text = %q, want from backup", res.Text)
	}
	// The backup must receive the same request.
	if len(backup.Calls) != 1 || backup.Calls[0].Req.Language != "en" {
		t.Errorf("backup calls = %+v, want one call with language en", backup.Calls)
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	primary := &sttmock.Transcriber{Errs: []error{errTest, errTest}}

	f := NewSTTFallback(primary, "only", FallbackConfig{})

	_, err := f.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
