package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
)

func testConfig() Config {
	return Config{
		BaseURL:      "https://www.example.com/moskva",
		Segments:     []string{"kvartiry/prodam", "doma_dachi_kottedzhi/prodam"},
		PriceBands:   []PriceBand{{Min: 1, Max: 5_000_000}, {Min: 5_000_001}},
		SortParam:    "s=104",
		PrivateParam: "user=1",
	}
}

func TestGenerateOrdersSegmentsThenBands(t *testing.T) {
	t.Parallel()

	gen, err := New(testConfig())
	require.NoError(t, err)

	urls, err := gen.Generate(Params{Sort: true})
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.example.com/moskva/kvartiry/prodam?pmax=5000000&pmin=1&s=104",
		"https://www.example.com/moskva/kvartiry/prodam?pmin=5000001&s=104",
		"https://www.example.com/moskva/doma_dachi_kottedzhi/prodam?pmax=5000000&pmin=1&s=104",
		"https://www.example.com/moskva/doma_dachi_kottedzhi/prodam?pmin=5000001&s=104",
	}, urls)
}

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()

	gen, err := New(testConfig())
	require.NoError(t, err)

	first, err := gen.Generate(Params{Sort: true, AgentFilter: true})
	require.NoError(t, err)
	second, err := gen.Generate(Params{Sort: true, AgentFilter: true})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, Fingerprint(first), Fingerprint(second))
	require.Contains(t, first[0], "user=1")
}

func TestGenerateParamsChangeSequence(t *testing.T) {
	t.Parallel()

	gen, err := New(testConfig())
	require.NoError(t, err)

	sorted, err := gen.Generate(Params{Sort: true})
	require.NoError(t, err)
	plain, err := gen.Generate(Params{})
	require.NoError(t, err)
	require.Len(t, plain, len(sorted))
	require.NotEqual(t, Fingerprint(sorted), Fingerprint(plain))
	require.NotContains(t, plain[0], "s=104")
}

func TestFingerprintIsShortHexDigest(t *testing.T) {
	t.Parallel()

	urls := []string{"https://www.example.com/a", "https://www.example.com/b"}
	fp := Fingerprint(urls)
	require.Len(t, fp, 12)
	require.Regexp(t, `^[0-9a-f]{12}$`, fp)
	require.Equal(t, sha256.Sum([]byte("https://www.example.com/a\nhttps://www.example.com/b"))[:12], fp)
	require.NotEqual(t, fp, Fingerprint([]string{urls[1], urls[0]}))
}

func TestGenerateWithoutSegmentsOrBands(t *testing.T) {
	t.Parallel()

	gen, err := New(Config{BaseURL: "https://www.example.com/all?cat=24"})
	require.NoError(t, err)

	urls, err := gen.Generate(Params{})
	require.NoError(t, err)
	require.Equal(t, []string{"https://www.example.com/all?cat=24"}, urls)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "https://example.com", PriceBands: []PriceBand{{Min: 10, Max: 5}}})
	require.Error(t, err)
}

func TestGenerateRejectsMalformedParam(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SortParam = "newest"
	gen, err := New(cfg)
	require.NoError(t, err)

	_, err = gen.Generate(Params{Sort: true})
	require.Error(t, err)
}
