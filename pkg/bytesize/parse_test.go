package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "bare bytes", input: "1024", want: 1024},
		{name: "bytes suffix", input: "512B", want: 512},
		{name: "nginx kilobytes", input: "100k", want: 100 * KiB},
		{name: "kilobytes", input: "100KB", want: 100 * KiB},
		{name: "nginx megabytes", input: "256M", want: 256 * MiB},
		{name: "megabytes lowercase", input: "512mb", want: 512 * MiB},
		{name: "gigabytes", input: "1g", want: GiB},
		{name: "fractional", input: "1.5GB", want: GiB + GiB/2},
		{name: "spaces", input: " 10 M ", want: 10 * MiB},
		{name: "zero disables limit", input: "0", want: 0},
		{name: "empty", input: "", wantErr: true},
		{name: "unit only", input: "MB", wantErr: true},
		{name: "garbage", input: "lots", wantErr: true},
		{name: "negative", input: "-1M", wantErr: true},
		{name: "terabytes unsupported", input: "1TB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNginx(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{256 * MiB, "256M"},
		{2 * GiB, "2G"},
		{1536 * KiB, "1536k"},
		{1000, "1000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Nginx(tt.in))
	}
}

func TestParseNginxRoundTrip(t *testing.T) {
	for _, s := range []string{"256M", "2G", "1536k", "1000"} {
		n, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, Nginx(n))
	}
}
