package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dropwire/dropwire/internal/errdefs"
	"github.com/dropwire/dropwire/internal/manifest"
)

// fakeConn records everything written to it.
type fakeConn struct {
	mu     sync.Mutex
	writes []interface{}
	closed bool
	fail   bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errDead
	}
	c.writes = append(c.writes, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frames(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var frames []Frame
	for _, w := range c.writes {
		f, ok := w.(Frame)
		if !ok {
			continue
		}
		frames = append(frames, f)
	}
	return frames
}

var errDead = errdefs.NetworkFailure(nil, "connection dead")

func testPairManifest() *manifest.Manifest {
	return manifest.NewFile(&manifest.FileManifest{
		FileName:    "photo.jpg",
		FilePath:    "/tmp/photo.jpg",
		Size:        1024,
		ChunkSize:   1024,
		TotalChunks: 1,
		Hash:        "abc",
		Chunks:      []manifest.Chunk{{ID: 0, Hash: "abc", Size: 1024}},
	})
}

func TestIssuePairCodeFormatAndUniqueness(t *testing.T) {
	h := NewHub(6, time.Hour)
	m := testPairManifest()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, expiresIn, err := h.IssuePairCode("t1", m)
		if err != nil {
			t.Fatalf("IssuePairCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit %q", code, r)
			}
		}
		if expiresIn != time.Hour {
			t.Fatalf("expiresIn = %v, want 1h", expiresIn)
		}
		if seen[code] {
			t.Fatalf("code %q issued twice while live", code)
		}
		seen[code] = true
	}
}

func TestIssuePairCodeRejectsMissingInputs(t *testing.T) {
	h := NewHub(6, time.Hour)
	if _, _, err := h.IssuePairCode("", testPairManifest()); !errdefs.IsInvalidInput(err) {
		t.Errorf("empty transfer id: got %v", err)
	}
	if _, _, err := h.IssuePairCode("t1", nil); !errdefs.IsInvalidInput(err) {
		t.Errorf("nil manifest: got %v", err)
	}
}

func TestInfoReportsStatusAndCountdown(t *testing.T) {
	h := NewHub(6, time.Hour)
	base := time.Now()
	h.now = func() time.Time { return base }

	code, _, err := h.IssuePairCode("t1", testPairManifest())
	if err != nil {
		t.Fatalf("IssuePairCode: %v", err)
	}

	h.now = func() time.Time { return base.Add(10 * time.Minute) }
	info, err := h.Info(code)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Status != StatusWaiting {
		t.Errorf("Status = %q, want waiting", info.Status)
	}
	if info.TransferID != "t1" || info.Manifest == nil {
		t.Errorf("info lost the transfer binding: %+v", info)
	}
	if info.ExpiresIn != int64((50 * time.Minute).Seconds()) {
		t.Errorf("ExpiresIn = %d, want %d", info.ExpiresIn, int64((50*time.Minute).Seconds()))
	}

	if _, err := h.Info("000000"); errdefs.ReasonOf(err) != errdefs.ReasonPairCodeUnknown {
		t.Errorf("unknown code: got %v, want reason %q", err, errdefs.ReasonPairCodeUnknown)
	}
}

func TestExpiredCodeIsPurgedOnLookup(t *testing.T) {
	h := NewHub(6, time.Hour)
	base := time.Now()
	h.now = func() time.Time { return base }

	code, _, err := h.IssuePairCode("t1", testPairManifest())
	if err != nil {
		t.Fatalf("IssuePairCode: %v", err)
	}

	h.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := h.Info(code); !errdefs.IsNotFound(err) {
		t.Fatalf("expired code should be gone, got %v", err)
	}
	if got := h.Stats().TotalPairCodes; got != 0 {
		t.Errorf("TotalPairCodes = %d after expiry, want 0", got)
	}
}

func TestConnectPairsBothSidesAndShipsManifestToReceiver(t *testing.T) {
	h := NewHub(6, time.Hour)
	code, _, err := h.IssuePairCode("t1", testPairManifest())
	if err != nil {
		t.Fatalf("IssuePairCode: %v", err)
	}

	sender := &fakeConn{}
	receiver := &fakeConn{}
	if err := h.Connect(code, RoleSender, sender); err != nil {
		t.Fatalf("Connect(sender): %v", err)
	}
	if err := h.Connect(code, RoleReceiver, receiver); err != nil {
		t.Fatalf("Connect(receiver): %v", err)
	}

	senderFrames := sender.frames(t)
	if len(senderFrames) != 2 || senderFrames[0].Type != FrameConnected || senderFrames[1].Type != FramePeerConnected {
		t.Fatalf("sender frames = %+v", senderFrames)
	}
	if senderFrames[1].Manifest != nil {
		t.Error("sender's peer_connected must not carry the manifest")
	}

	receiverFrames := receiver.frames(t)
	if len(receiverFrames) != 2 || receiverFrames[1].Type != FramePeerConnected {
		t.Fatalf("receiver frames = %+v", receiverFrames)
	}
	if receiverFrames[1].Manifest == nil {
		t.Error("receiver's peer_connected must carry the manifest")
	}
	if receiverFrames[1].PeerRole != RoleSender {
		t.Errorf("receiver peer_role = %q, want sender", receiverFrames[1].PeerRole)
	}

	info, err := h.Info(code)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Status != StatusPaired {
		t.Errorf("Status = %q after both connect, want paired", info.Status)
	}
}

func TestConnectRejectsBadCodeAndRole(t *testing.T) {
	h := NewHub(6, time.Hour)

	conn := &fakeConn{}
	if err := h.Connect("999999", RoleSender, conn); !errdefs.IsNotFound(err) {
		t.Fatalf("unknown code: got %v", err)
	}
	frames := conn.frames(t)
	if len(frames) != 1 || frames[0].Type != FrameError {
		t.Fatalf("expected one error frame, got %+v", frames)
	}
	if !conn.closed {
		t.Error("connection should be closed after a bad code")
	}

	conn = &fakeConn{}
	if err := h.Connect("999999", "observer", conn); !errdefs.IsInvalidInput(err) {
		t.Fatalf("bad role: got %v", err)
	}
	if !conn.closed {
		t.Error("connection should be closed after a bad role")
	}
}

func TestRelayForwardsVerbatim(t *testing.T) {
	h := NewHub(6, time.Hour)
	code, _, _ := h.IssuePairCode("t1", testPairManifest())

	sender := &fakeConn{}
	receiver := &fakeConn{}
	h.Connect(code, RoleSender, sender)
	h.Connect(code, RoleReceiver, receiver)

	payload := json.RawMessage(`{"type":"lan_ready","address":"http://192.168.1.5:9000"}`)
	h.Relay(code, RoleSender, payload)

	receiver.mu.Lock()
	last := receiver.writes[len(receiver.writes)-1]
	receiver.mu.Unlock()
	raw, ok := last.(json.RawMessage)
	if !ok {
		t.Fatalf("receiver got %T, want the raw payload", last)
	}
	if string(raw) != string(payload) {
		t.Fatalf("payload altered in relay: %s", raw)
	}
}

func TestRelayWithoutPeerReportsError(t *testing.T) {
	h := NewHub(6, time.Hour)
	code, _, _ := h.IssuePairCode("t1", testPairManifest())

	sender := &fakeConn{}
	h.Connect(code, RoleSender, sender)
	h.Relay(code, RoleSender, json.RawMessage(`{"type":"ping"}`))

	frames := sender.frames(t)
	last := frames[len(frames)-1]
	if last.Type != FrameError || last.Message != "Peer not connected" {
		t.Fatalf("sender should get a peer-not-connected error, got %+v", last)
	}
}

func TestRelayToDeadPeerReportsError(t *testing.T) {
	h := NewHub(6, time.Hour)
	code, _, _ := h.IssuePairCode("t1", testPairManifest())

	sender := &fakeConn{}
	receiver := &fakeConn{}
	h.Connect(code, RoleSender, sender)
	h.Connect(code, RoleReceiver, receiver)

	receiver.mu.Lock()
	receiver.fail = true
	receiver.mu.Unlock()

	h.Relay(code, RoleSender, json.RawMessage(`{"type":"ping"}`))
	frames := sender.frames(t)
	last := frames[len(frames)-1]
	if last.Type != FrameError {
		t.Fatalf("dead peer write should surface as an error frame, got %+v", last)
	}
}

func TestDisconnectNotifiesPeerAndDropsEmptyRoom(t *testing.T) {
	h := NewHub(6, time.Hour)
	code, _, _ := h.IssuePairCode("t1", testPairManifest())

	sender := &fakeConn{}
	receiver := &fakeConn{}
	h.Connect(code, RoleSender, sender)
	h.Connect(code, RoleReceiver, receiver)

	h.Disconnect(code, RoleSender)
	frames := receiver.frames(t)
	last := frames[len(frames)-1]
	if last.Type != FramePeerDisconnected || last.PeerRole != RoleSender {
		t.Fatalf("receiver should learn the sender left, got %+v", last)
	}

	stats := h.Stats()
	if stats.ActiveConnections != 1 {
		t.Errorf("ActiveConnections = %d, want 1", stats.ActiveConnections)
	}

	h.Disconnect(code, RoleReceiver)
	stats = h.Stats()
	if stats.ActivePairs != 0 || stats.ActiveConnections != 0 {
		t.Errorf("empty room should be dropped, stats = %+v", stats)
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	h := NewHub(6, time.Hour)
	code, _, _ := h.IssuePairCode("t1", testPairManifest())

	first := &fakeConn{}
	second := &fakeConn{}
	receiver := &fakeConn{}
	h.Connect(code, RoleSender, first)
	h.Connect(code, RoleReceiver, receiver)
	h.Connect(code, RoleSender, second)

	h.Relay(code, RoleReceiver, json.RawMessage(`{"type":"resume"}`))

	second.mu.Lock()
	gotOnSecond := len(second.writes)
	second.mu.Unlock()
	if gotOnSecond == 0 {
		t.Fatal("relayed message should reach the replacement connection")
	}

	first.mu.Lock()
	for _, w := range first.writes {
		if raw, ok := w.(json.RawMessage); ok {
			t.Fatalf("stale connection received relayed payload %s", raw)
		}
	}
	first.mu.Unlock()
}
