package e2ee

import (
	"path/filepath"
	"testing"

	"github.com/go-trix/e2ee/trust"
)

func newTestTrustStore(t *testing.T) *trust.Store {
	t.Helper()
	s, err := trust.Open(filepath.Join(t.TempDir(), "trust.db"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}
