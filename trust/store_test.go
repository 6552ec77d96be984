package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-trix/e2ee/device"
	"github.com/go-trix/e2ee/identity"
)

func testKey() device.Key {
	return device.Key{
		UserID:    identity.MustParseUserID("@example:example.org"),
		DeviceID:  "DEVICEID",
		Algorithm: device.AlgorithmEd25519,
		Public:    "2MX1WOCAmE9eyywGdiMsQ4RxL2SIKVeyJXiSjVFycpA",
	}
}

func TestAddRemoveCheck(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "trusted_devices"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	k := testKey()
	if s.Check(k) {
		t.Fatal("key should not be trusted yet")
	}

	added, err := s.Add(k)
	if err != nil || !added {
		t.Fatalf("Add: %v, %v", added, err)
	}
	if !s.Check(k) {
		t.Fatal("key should be trusted after Add")
	}

	removed, err := s.Remove(k)
	if err != nil || !removed {
		t.Fatalf("Remove: %v, %v", removed, err)
	}
	if s.Check(k) {
		t.Fatal("key should not be trusted after Remove")
	}
}

func TestRoundTripAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "trusted_devices")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	k := testKey()
	if _, err := s.Add(k); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.Check(k) {
		t.Fatal("key should survive reopen")
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "trusted_devices")

	writeFile(t, path, "# a comment\n\nnot enough fields\n@example:example.org DEVICEID ed25519 2MX1WOCAmE9eyywGdiMsQ4RxL2SIKVeyJXiSjVFycpA\n@bad unknownalg DEVICEID\n")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.Check(testKey()) {
		t.Fatal("valid line should have been loaded despite malformed neighbors")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
}
