// Command e2eectl is a small operator CLI around the e2ee engine: it
// opens (or bootstraps) a local account's store, replenishes one-time
// keys, and reports what the engine currently knows. It exists to
// exercise the engine end-to-end from the command line, the way
// cmd/xmppd exercises the rest of this module's teacher.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-trix/e2ee"
	"github.com/go-trix/e2ee/identity"
	"github.com/go-trix/e2ee/store/file"
	"github.com/go-trix/e2ee/trust"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalf("usage: e2eectl [-config FILE] <bootstrap|inspect>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.UserID == "" || cfg.DeviceID == "" || cfg.PickleKey == "" {
		log.Fatalf("config: user_id, device_id, and pickle_key are required")
	}

	userID, err := identity.ParseUserID(cfg.UserID)
	if err != nil {
		log.Fatalf("config: invalid user_id: %v", err)
	}
	deviceID := identity.DeviceID(cfg.DeviceID)

	persist := file.New(userID, deviceID, cfg.StorageDir, cfg.PickleKey)
	trustStore, err := trust.Open(filepath.Join(cfg.StorageDir, "trust.db"))
	if err != nil {
		log.Fatalf("trust store: %v", err)
	}

	engineCfg := e2ee.EngineConfig{
		UserID:                  cfg.UserID,
		DeviceID:                cfg.DeviceID,
		ShareWithIgnoredDevices: cfg.ShareWithIgnoredDevices,
		MaxOneTimeKeys:          cfg.MaxOneTimeKeys,
	}
	engine, err := e2ee.Open(engineCfg, trustStore, persist)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}

	switch flag.Arg(0) {
	case "bootstrap":
		runBootstrap(engine, persist)
	case "inspect":
		runInspect(engine)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}

// runBootstrap generates MaxOneTimeKeys new one-time keys when
// ShouldReplenishOneTimeKeys reports that replenishment is due,
// persists the account, and prints the account's identity keys and
// its count of unpublished one-time keys.
func runBootstrap(engine *e2ee.Engine, persist *file.Store) {
	acct := engine.Account()

	if engine.ShouldReplenishOneTimeKeys() {
		keys, err := acct.GenerateOneTimeKeys(engine.Config().MaxOneTimeKeys)
		if err != nil {
			log.Fatalf("generate one-time keys: %v", err)
		}
		if err := persist.SaveAccount(acct); err != nil {
			log.Fatalf("save account: %v", err)
		}
		log.Printf("generated %d one-time keys", len(keys))
	}

	bundle := map[string]interface{}{
		"user_id":   engine.Config().UserID,
		"device_id": engine.Config().DeviceID,
		"keys": map[string]string{
			"curve25519": acct.Curve25519Public(),
			"ed25519":    acct.Ed25519Public(),
		},
		"one_time_keys_remaining": acct.OneTimeKeysRemaining(),
	}
	printJSON(bundle)
}

func runInspect(engine *e2ee.Engine) {
	acct := engine.Account()
	fmt.Printf("curve25519: %s\n", acct.Curve25519Public())
	fmt.Printf("ed25519:    %s\n", acct.Ed25519Public())
	fmt.Printf("one-time keys remaining: %d\n", acct.OneTimeKeysRemaining())
	fmt.Printf("should replenish one-time keys: %v\n", engine.ShouldReplenishOneTimeKeys())

	devices := engine.Devices().Snapshot()
	fmt.Printf("known devices: %d\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  %s/%s trust=%s deleted=%v\n", d.UserID.String(), d.DeviceID, d.TrustState, d.Deleted)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
