package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjannette/microtrend-backend/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "BTCUSDT" || cfg.Leverage != 5 || cfg.RiskPerTrade != 0.003 {
		t.Fatalf("unexpected trading defaults: %+v", cfg)
	}
	if cfg.Mode != models.ModeScalping {
		t.Fatalf("expected scalping, got %s", cfg.Mode)
	}
	if cfg.GridCount != 10 || cfg.GridInvestment != 50 || cfg.DCAAmount != 10 {
		t.Fatal("unexpected grid/dca defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	yml := "symbol: ETHUSDT\nleverage: 10\nmode: grid\ngrid_count: 4\nscan_symbols: [ETHUSDT, SOLUSDT]\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LEVERAGE", "3")
	t.Setenv("TRADING_MODE", "bogus")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Fatalf("yaml symbol not applied: %s", cfg.Symbol)
	}
	if cfg.Leverage != 3 {
		t.Fatalf("env should override yaml leverage, got %d", cfg.Leverage)
	}
	if cfg.Mode != models.ModeScalping {
		t.Fatalf("unknown env mode should fall back to scalping, got %s", cfg.Mode)
	}
	if cfg.GridCount != 4 || len(cfg.ScanSymbols) != 2 {
		t.Fatalf("yaml grid/scan not applied: %d %v", cfg.GridCount, cfg.ScanSymbols)
	}
	if cfg.RiskPerTrade != 0.003 {
		t.Fatal("unset keys should keep defaults")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "YES")
	t.Setenv("X_INT", "notanumber")
	t.Setenv("X_LIST", " btcusdt, ,ethusdt ")

	if !envBool("X_BOOL", false) {
		t.Fatal("YES should parse as true")
	}
	if envInt("X_INT", 7) != 7 {
		t.Fatal("bad int should fall back")
	}
	got := envList("X_LIST", nil)
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("envList: %v", got)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Leverage = 0
	cfg.RiskPerTrade = 0.5
	cfg.PaperTrading = false
	cfg.StorageDriver = "mongo"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"LEVERAGE", "RISK_PER_TRADE", "BINANCE_API_KEY", "STORAGE_DRIVER"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %s in:\n%s", want, msg)
		}
	}
	t.Logf("Validation errors:\n%s", msg)
}

func TestWarnings(t *testing.T) {
	cfg := Defaults()
	w := strings.Join(cfg.Warnings(), "\n")
	if !strings.Contains(w, "API_KEY") || !strings.Contains(w, "STORAGE_DRIVER") {
		t.Fatalf("expected auth and storage warnings, got:\n%s", w)
	}
}

func TestSizingWarnings(t *testing.T) {
	cfg := Defaults()
	if w := cfg.SizingWarnings(70000); w != nil {
		t.Fatalf("paper trading sizes exactly, got:\n%s", strings.Join(w, "\n"))
	}

	cfg.PaperTrading = false
	w := strings.Join(cfg.SizingWarnings(70000), "\n")
	if !strings.Contains(w, "DCA_AMOUNT $10.00 is below one 0.001 lot") {
		t.Fatalf("expected DCA lot warning, got:\n%s", w)
	}
	if !strings.Contains(w, "GRID_INVESTMENT $50.00 over 10 levels at 5x") {
		t.Fatalf("expected grid lot warning, got:\n%s", w)
	}

	if w := cfg.SizingWarnings(2000); len(w) != 0 {
		t.Fatalf("$10 buys 0.005 at 2000, got:\n%s", strings.Join(w, "\n"))
	}
}

func TestBinanceBaseURL(t *testing.T) {
	cfg := Defaults()
	if cfg.BinanceBaseURL() != testnetURL {
		t.Fatal("testnet is the default")
	}
	cfg.BinanceTestnet = false
	if cfg.BinanceBaseURL() != mainnetURL {
		t.Fatal("expected mainnet")
	}
}
