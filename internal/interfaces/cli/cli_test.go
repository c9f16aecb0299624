package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/pkg/config"
	"github.com/NESTREN/aio-warehouse-bot/pkg/jwt"
)

const testSecret = "cli-test-secret"

// testOptions apunta a un SQLite temporal para que el estado sobreviva entre comandos.
func testOptions(t *testing.T) *RootOptions {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inv.db")
	return &RootOptions{LoadConfig: func() (*config.Config, error) {
		return &config.Config{
			App:    config.AppConfig{Env: "production"},
			DB:     config.DBConfig{Driver: config.DriverSQLite, Path: path},
			JWT:    config.JWTConfig{Secret: testSecret, Expiration: 60, Issuer: "test"},
			Ledger: config.LedgerConfig{LockTimeout: time.Second},
			Import: config.ImportConfig{Actor: "bulk-import"},
		}, nil
	}}
}

func execute(t *testing.T, opts *RootOptions, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestImportExportVerify(t *testing.T) {
	opts := testOptions(t)

	file := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, os.WriteFile(file, []byte("A-1,Adapter,10,pcs,R1,Main,2\nB-2,,5\nC-3,Cable,7\n"), 0o600))

	out, err := execute(t, opts, "", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "line 2 (B-2): name required")
	assert.Contains(t, out, "created=2 updated=0 rejected=1")

	// Reimportar por stdin: código existente con qty es un set.
	out, err = execute(t, opts, "a-1,,4\n", "import", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "created=0 updated=1 rejected=0")

	out, err = execute(t, opts, "", "export", "stock", "--warehouse", "main")
	require.NoError(t, err)
	assert.Equal(t, "code,name,quantity,unit,location,warehouse,min_qty\n"+
		"A-1,Adapter,4,pcs,R1,Main,2\n", out)

	out, err = execute(t, opts, "", "export", "movements", "--item", "A-1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], ",A-1,delta,10,10,bulk-import,bulk import")
	assert.Contains(t, lines[2], ",A-1,set,-6,4,bulk-import,bulk import")

	out, err = execute(t, opts, "", "verify")
	require.NoError(t, err)
	assert.Equal(t, "checked=2\n", out)

	out, err = execute(t, opts, "", "verify", "c-3")
	require.NoError(t, err)
	assert.Equal(t, "ok c-3 quantity=7\n", out)

	_, err = execute(t, opts, "", "verify", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExport_ArchivoConBOM(t *testing.T) {
	opts := testOptions(t)
	_, err := execute(t, opts, "X,Equis,1\n", "import", "-")
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "stock.csv")
	out, err := execute(t, opts, "", "export", "stock", "--bom", "-o", dst)
	require.NoError(t, err)
	assert.Empty(t, out)

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "\ufeffcode,name"))
}

func TestExport_FechaInvalida(t *testing.T) {
	_, err := execute(t, testOptions(t), "", "export", "movements", "--since", "ayer")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := execute(t, testOptions(t), "", "token", "ana", "--minutes", "5")
	require.NoError(t, err)

	actor, err := jwt.Parse(testSecret, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ana", actor)
}

func TestImport_ArchivoInexistente(t *testing.T) {
	_, err := execute(t, testOptions(t), "", "import", filepath.Join(t.TempDir(), "no.csv"))
	assert.Error(t, err)
}
