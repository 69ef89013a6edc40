package dialogue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCoversEveryState(t *testing.T) {
	risks := []RiskLevel{RiskNone, RiskLow, RiskHigh}
	auths := []AuthLevel{Unauthenticated, AuthLow, AuthHigh}

	for _, classified := range []bool{false, true} {
		for _, req := range risks {
			for _, cur := range auths {
				s := Snapshot{Classified: classified, Required: req, Current: cur}
				got := Select(s)

				assert.Equal(t, !classified, got == Classifier, "%+v", s)
				if !classified {
					continue
				}
				assert.Equal(t, cur.Satisfies(req), got == Assistant, "%+v", s)
				switch {
				case got == HighRiskAuthenticator:
					assert.Equal(t, RiskHigh, req)
				case got == LowRiskAuthenticator:
					assert.Equal(t, RiskLow, req)
				}
			}
		}
	}
}

func TestSatisfiesOrdering(t *testing.T) {
	assert.True(t, Unauthenticated.Satisfies(RiskNone))
	assert.False(t, Unauthenticated.Satisfies(RiskLow))
	assert.True(t, AuthLow.Satisfies(RiskLow))
	assert.False(t, AuthLow.Satisfies(RiskHigh))
	assert.True(t, AuthHigh.Satisfies(RiskLow))
	assert.True(t, AuthHigh.Satisfies(RiskHigh))
}

func TestAuthLevelText(t *testing.T) {
	for _, lvl := range []AuthLevel{Unauthenticated, AuthLow, AuthHigh} {
		b, err := lvl.MarshalText()
		require.NoError(t, err)
		var got AuthLevel
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, lvl, got)
	}

	var lvl AuthLevel
	assert.Error(t, lvl.UnmarshalText([]byte("medium")))
}

func TestRiskLevelText(t *testing.T) {
	for _, lvl := range []RiskLevel{RiskNone, RiskLow, RiskHigh} {
		b, err := lvl.MarshalText()
		require.NoError(t, err)
		var got RiskLevel
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, lvl, got)
	}

	var lvl RiskLevel
	assert.Error(t, lvl.UnmarshalText([]byte("medium")))
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	st := NewCallAuthState("CA1")
	require.True(t, st.classify("Account Balance Inquiry", DefaultRiskTable()))
	require.True(t, st.raise(AuthLow))
	want := st.Snapshot()

	raw, err := json.Marshal(want)
	require.NoError(t, err)
	var got Snapshot
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, want, got)
}

func TestAuthLevelNeverDecreases(t *testing.T) {
	sequences := [][]AuthLevel{
		{AuthLow, AuthHigh, AuthLow},
		{AuthHigh, AuthLow, AuthLow},
		{AuthLow, AuthLow, AuthHigh, AuthHigh},
		{Unauthenticated, AuthHigh, Unauthenticated},
	}
	for _, seq := range sequences {
		st := NewCallAuthState("CA")
		prev := Unauthenticated
		for _, lvl := range seq {
			st.raise(lvl)
			cur := st.Snapshot().Current
			assert.GreaterOrEqual(t, int(cur), int(prev), "sequence %v", seq)
			prev = cur
		}
	}
}

func TestLowSuccessDoesNotApplyAfterHigh(t *testing.T) {
	st := NewCallAuthState("CA")
	assert.True(t, st.raise(AuthHigh))
	assert.False(t, st.raise(AuthLow))
	assert.False(t, st.raise(AuthHigh))
	assert.Equal(t, AuthHigh, st.Snapshot().Current)
}

func TestClassificationIsSticky(t *testing.T) {
	table := DefaultRiskTable()
	st := NewCallAuthState("CA")

	assert.False(t, st.classify("None", table))
	assert.False(t, st.classify("  ", table))
	assert.True(t, st.classify("account  balance inquiry", table))
	assert.False(t, st.classify("Wire Transfer Assistance", table))

	snap := st.Snapshot()
	assert.Equal(t, "Account Balance Inquiry", snap.Classification)
	assert.Equal(t, RiskLow, snap.Required)
}

func TestUnknownClassificationFailsClosed(t *testing.T) {
	table := DefaultRiskTable()
	assert.Equal(t, RiskHigh, table.Resolve("Crypto Staking Question"))
	assert.Equal(t, RiskNone, table.Resolve("general product/benefits inquiry"))

	st := NewCallAuthState("CA")
	require.True(t, st.classify("Crypto Staking Question", table))
	assert.Equal(t, RiskHigh, st.Snapshot().Required)
	assert.Equal(t, HighRiskAuthenticator, Select(st.Snapshot()))
}

func TestLoadRiskTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  Balance: low\n  Wires: High\n  Hours: none\n"), 0o600))

	table, err := LoadRiskTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Balance", "Hours", "Wires"}, table.Categories())
	assert.Equal(t, RiskLow, table.Resolve("balance"))
	assert.Equal(t, RiskNone, table.Resolve("HOURS"))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("categories:\n  Balance: medium\n"), 0o600))
	_, err = LoadRiskTable(bad)
	assert.Error(t, err)
}
