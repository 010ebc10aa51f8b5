package hostsys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-mesh/remora/internal/sysapi"
)

const sampleMaps = `00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/dbus-daemon
00651000-00652000 r--p 00051000 08:02 173521 /usr/bin/dbus-daemon
00652000-00655000 rw-p 00052000 08:02 173521 /usr/bin/dbus-daemon
00e03000-00e24000 rw-p 00000000 00:00 0 [heap]
7f0e4a000000-7f0e4a021000 r-xp 00000000 08:02 135522 /usr/lib64/libc-2.17.so
7f0e4a021000-7f0e4a220000 ---p 00021000 08:02 135522 /usr/lib64/libc-2.17.so
7fffa5b1e000-7fffa5b3f000 rw-p 00000000 00:00 0 [stack]
7fffa5bff000-7fffa5c00000 r-xp 00000000 00:00 0 [vdso]
`

func TestParseMaps(t *testing.T) {
	regions, err := parseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, regions, 8)

	assert.Equal(t, sysapi.AddressRegion{
		Name: "/usr/bin/dbus-daemon",
		Base: 0x00400000,
		Size: 0x52000,
	}, regions[0])
	assert.Equal(t, "[heap]", regions[3].Name)
	assert.Equal(t, "[stack]", regions[6].Name)
}

func TestParseMapsAnonymousRegion(t *testing.T) {
	regions, err := parseMaps(strings.NewReader("00e03000-00e24000 rw-p 00000000 00:00 0\n"))
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Empty(t, regions[0].Name)
	assert.Equal(t, uint64(0xe03000), regions[0].Base)
}

func TestParseMapsMalformed(t *testing.T) {
	_, err := parseMaps(strings.NewReader("garbage\n"))
	assert.Error(t, err)

	_, err = parseMaps(strings.NewReader("zzzz-0000 r-xp 00000000 08:02 1 /bin/x\n"))
	assert.Error(t, err)
}

func TestModulesFromMaps(t *testing.T) {
	modules, err := modulesFromMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, modules, 2, "only executable file-backed mappings count")

	assert.Equal(t, "dbus-daemon", modules[0].Name)
	assert.Equal(t, uint64(0x00400000), modules[0].Base)
	assert.Equal(t, "libc-2.17.so", modules[1].Name)
	assert.Equal(t, uint64(0x7f0e4a000000), modules[1].Base)
}
