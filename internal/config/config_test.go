package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/auditor")
	t.Setenv("AUDIT_DIR", "/var/audit")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: "/home/auditor"},
		{in: "~/data/audit.db", want: filepath.Join("/home/auditor", "data/audit.db")},
		{in: "$AUDIT_DIR/audit.db", want: "/var/audit/audit.db"},
		{in: "/abs/path", want: "/abs/path"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func clearSheetsEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOOGLE_SHEETS_CLIENT_ID",
		"GOOGLE_SHEETS_CLIENT_SECRET",
		"GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH",
		"GOOGLE_SHEETS_SPREADSHEET_ID",
		"GOOGLE_SHEETS_SPREADSHEET_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadSheetsConfig(t *testing.T) {
	clearSheetsEnv(t)
	t.Setenv("HOME", "/home/auditor")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_ID", "from-env")

	v := viper.New()
	v.Set("sheets.service_account_path", "~/keys/sa.json")
	v.Set("sheets.spreadsheet_name", "March Audit")

	cfg, err := LoadSheetsConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "/home/auditor/keys/sa.json", cfg.ServiceAccountPath)
	assert.Equal(t, "March Audit", cfg.SpreadsheetName)
	assert.Equal(t, "from-env", cfg.SpreadsheetID)
}

func TestLoadSheetsConfig_ViperWinsOverEnv(t *testing.T) {
	clearSheetsEnv(t)
	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "env-secret")
	t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "env-token")

	v := viper.New()
	v.Set("sheets.client_id", "viper-client")

	cfg, err := LoadSheetsConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "viper-client", cfg.ClientID)
	assert.Equal(t, "env-secret", cfg.ClientSecret)
}

func TestLoadSheetsConfig_MissingAuth(t *testing.T) {
	clearSheetsEnv(t)

	_, err := LoadSheetsConfig(viper.New())
	assert.Error(t, err)
}

func TestDefaultLocations(t *testing.T) {
	t.Setenv("HOME", "/home/auditor")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, "/home/auditor/.config/spice-audit", Dir())
	assert.Equal(t, "/home/auditor/.local/share/spice-audit/audit.db", DefaultDatabasePath())

	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, "/xdg/config/spice-audit", Dir())
	assert.Equal(t, "/xdg/data/spice-audit/audit.db", DefaultDatabasePath())
}
