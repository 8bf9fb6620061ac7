package flash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

func TestMemory(t *testing.T) {
	image := []byte{1, 2, 3, 4, 5, 6}
	m := NewMemory(image)
	resets := 0
	m.OnReset = func() { resets++ }

	require.Equal(t, 6, m.Size())
	require.Equal(t, byte(3), m.ImageByte(2))
	require.Equal(t, xgrid.CRC16(image), m.CRC16(xgrid.RegionRunning))
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, m.Image(xgrid.RegionStaging))

	require.NoError(t, m.WritePage(0, []byte{9, 9, 9, 9}))
	require.NoError(t, m.WritePage(4, []byte{8, 8, 8, 8}))
	require.Equal(t, xgrid.ErrOutOfImage, m.WritePage(6, []byte{1}))
	staged := []byte{9, 9, 9, 9, 8, 8}
	require.Equal(t, xgrid.CRC16(staged), m.CRC16(xgrid.RegionStaging))

	require.NoError(t, m.InstallAndReset())
	require.Equal(t, staged, m.Image(xgrid.RegionRunning))
	require.Equal(t, 1, m.Installs())
	require.Equal(t, 1, m.Resets())
	require.Equal(t, 1, resets)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	image := []byte("running image")
	require.NoError(t, os.WriteFile(path, image, 0644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	resets := 0
	f.OnReset = func() { resets++ }

	require.Equal(t, len(image), f.Size())
	require.Equal(t, byte('r'), f.ImageByte(0))
	require.Equal(t, xgrid.CRC16(image), f.CRC16(xgrid.RegionRunning))

	next := []byte("updated image")
	require.NoError(t, f.WritePage(8, append([]byte(nil), next[8:]...)))
	require.NoError(t, f.WritePage(0, next[:8]))
	require.Equal(t, xgrid.ErrOutOfImage, f.WritePage(len(image), next))
	require.Equal(t, xgrid.CRC16(next), f.CRC16(xgrid.RegionStaging))
	// running image untouched until installed
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, image, data)

	require.NoError(t, f.InstallAndReset())
	require.Equal(t, 1, resets)
	require.Equal(t, xgrid.CRC16(next), f.CRC16(xgrid.RegionRunning))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, next, data)
	_, err = os.Stat(f.StagingPath)
	require.True(t, os.IsNotExist(err))
}

func TestFileNothingStaged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, []byte{1}, 0644))
	f, err := OpenFile(path)
	require.NoError(t, err)
	require.Error(t, f.InstallAndReset())
	_, err = OpenFile(path + ".missing")
	require.Error(t, err)
}
