package file

import (
	"testing"

	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/olmsession"
	"github.com/go-trix/e2ee/store"
	"github.com/go-trix/e2ee/store/storetest"
)

func TestFileStore(t *testing.T) {
	userID := identity.MustParseUserID("@alice:example.org")
	deviceID := identity.DeviceID("ALICEDEVICE")

	storetest.TestStore(t, func() store.Store {
		dir := t.TempDir()
		return New(userID, deviceID, dir, "correct horse battery staple")
	})
}

func TestNewBuildsFilenameFromIdentity(t *testing.T) {
	dir := t.TempDir()
	userID := identity.MustParseUserID("@bob:example.org")
	deviceID := identity.DeviceID("BOBDEVICE")

	s := New(userID, deviceID, dir, "pw")
	want := dir + "/@bob:example.org_BOBDEVICE.db"
	if s.path != want {
		t.Fatalf("path = %q, want %q", s.path, want)
	}
}

func TestLoadAccountMissingFileReturnsErrNoAccount(t *testing.T) {
	dir := t.TempDir()
	s := New(identity.MustParseUserID("@carol:example.org"), identity.DeviceID("CAROLDEVICE"), dir, "pw")

	if _, err := s.LoadAccount(); err != store.ErrNoAccount {
		t.Fatalf("LoadAccount on fresh store: got %v, want ErrNoAccount", err)
	}
}

func TestPersistSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	userID := identity.MustParseUserID("@dave:example.org")
	deviceID := identity.DeviceID("DAVEDEVICE")
	pickleKey := "reopen test key"

	s := New(userID, deviceID, dir, pickleKey)
	acct, err := olmsession.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAccount(acct); err != nil {
		t.Fatal(err)
	}

	reopened := New(userID, deviceID, dir, pickleKey)
	restored, err := reopened.LoadAccount()
	if err != nil {
		t.Fatalf("LoadAccount after reopen: %v", err)
	}
	if restored.Ed25519Public() != acct.Ed25519Public() {
		t.Fatalf("account identity changed across reopen")
	}
}
