package control

import (
	"errors"
	"strings"
	"testing"

	"github.com/e7canasta/replay-sensor/internal/config"
	"github.com/e7canasta/replay-sensor/internal/export"
)

func newTestHandler(cb CommandCallbacks) *Handler {
	cfg := &config.Config{}
	return NewHandler(cfg, nil, cb)
}

func TestExecute_GetStatus(t *testing.T) {
	h := newTestHandler(CommandCallbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"state": "Ready", "buffer_seconds": 4.2}
		},
	})

	resp := h.execute(Command{Command: "get_status"})
	if resp.Status != "success" {
		t.Fatalf("status: got %s, want success (%s)", resp.Status, resp.Error)
	}
	if resp.CommandAck != "get_status" {
		t.Errorf("ack: got %s", resp.CommandAck)
	}
	if resp.Data["state"] != "Ready" {
		t.Errorf("data: %+v", resp.Data)
	}
}

func TestExecute_Export(t *testing.T) {
	t.Run("started", func(t *testing.T) {
		var called bool
		h := newTestHandler(CommandCallbacks{
			OnExport: func() error { called = true; return nil },
		})
		resp := h.execute(Command{Command: "export"})
		if !called {
			t.Fatal("export callback not invoked")
		}
		if resp.Status != "success" {
			t.Errorf("status: got %s (%s)", resp.Status, resp.Error)
		}
	})

	t.Run("empty buffer", func(t *testing.T) {
		h := newTestHandler(CommandCallbacks{
			OnExport: func() error { return export.ErrEmptyBuffer },
		})
		resp := h.execute(Command{Command: "export"})
		if resp.Status != "error" {
			t.Fatalf("status: got %s, want error", resp.Status)
		}
		if !strings.Contains(resp.Error, "empty") {
			t.Errorf("error message: %q", resp.Error)
		}
	})

	t.Run("encode failure", func(t *testing.T) {
		h := newTestHandler(CommandCallbacks{
			OnExport: func() error { return errors.New("disk full") },
		})
		resp := h.execute(Command{Command: "export"})
		if resp.Status != "error" || resp.Error != "disk full" {
			t.Errorf("resp: %+v", resp)
		}
	})
}

func TestExecute_SetRetention(t *testing.T) {
	var got int
	h := newTestHandler(CommandCallbacks{
		OnSetRetention: func(seconds int) error {
			if seconds < 5 || seconds > 30 {
				return errors.New("retention out of bounds")
			}
			got = seconds
			return nil
		},
	})

	resp := h.execute(Command{
		Command: "set_retention",
		Params:  map[string]interface{}{"seconds": float64(20)},
	})
	if resp.Status != "success" {
		t.Fatalf("status: got %s (%s)", resp.Status, resp.Error)
	}
	if got != 20 {
		t.Errorf("callback received %d, want 20", got)
	}
	if resp.Data["retention_seconds"] != 20 {
		t.Errorf("data: %+v", resp.Data)
	}

	resp = h.execute(Command{
		Command: "set_retention",
		Params:  map[string]interface{}{"seconds": float64(60)},
	})
	if resp.Status != "error" {
		t.Error("out-of-bounds retention must be rejected")
	}

	resp = h.execute(Command{Command: "set_retention"})
	if resp.Status != "error" || !strings.Contains(resp.Error, "seconds") {
		t.Errorf("missing param: %+v", resp)
	}

	resp = h.execute(Command{
		Command: "set_retention",
		Params:  map[string]interface{}{"seconds": 7.5},
	})
	if resp.Status != "error" {
		t.Error("fractional retention must be rejected")
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	h := newTestHandler(CommandCallbacks{})
	resp := h.execute(Command{Command: "reboot_universe"})
	if resp.Status != "error" || !strings.Contains(resp.Error, "unknown command") {
		t.Errorf("resp: %+v", resp)
	}
	if resp.CommandAck != "reboot_universe" {
		t.Errorf("ack: %s", resp.CommandAck)
	}
}

func TestExecute_MissingCallbacks(t *testing.T) {
	h := newTestHandler(CommandCallbacks{})
	for _, cmd := range []string{"get_status", "export", "set_retention"} {
		resp := h.execute(Command{Command: cmd})
		if resp.Status != "error" || !strings.Contains(resp.Error, "not implemented") {
			t.Errorf("%s: %+v", cmd, resp)
		}
	}
}
