package flash

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// File keeps the running image in a file. Pulled pages go to a staging
// file next to it, installing renames the staging file over the image.
type File struct {
	Path        string
	StagingPath string
	// OnReset is called by Reset and InstallAndReset, a daemon usually
	// re-executes itself.
	OnReset func()

	lock    sync.Mutex
	running []byte
	staging *os.File
}

// StagingSuffix is appended to the image path for the staging file.
const StagingSuffix = ".staging"

// OpenFile loads the running image.
func OpenFile(path string) (*File, error) {
	f := &File{Path: path, StagingPath: path + StagingSuffix}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("load image: %v", err)
	}
	f.running = data
	return nil
}

// Size implements xgrid.FlashImage.
func (f *File) Size() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.running)
}

// ImageByte implements xgrid.FlashImage.
func (f *File) ImageByte(addr int) byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.running[addr]
}

func (f *File) openStaging() error {
	if f.staging != nil {
		return nil
	}
	file, err := os.OpenFile(f.StagingPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	erased := make([]byte, len(f.running))
	erase(erased)
	if _, err = file.Write(erased); err != nil {
		file.Close()
		return err
	}
	f.staging = file
	return nil
}

// WritePage implements xgrid.FlashImage.
func (f *File) WritePage(addr int, data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if addr < 0 || addr >= len(f.running) {
		return xgrid.ErrOutOfImage
	}
	if err := f.openStaging(); err != nil {
		return err
	}
	if rest := len(f.running) - addr; len(data) > rest {
		data = data[:rest]
	}
	_, err := f.staging.WriteAt(data, int64(addr))
	return err
}

// CRC16 implements xgrid.FlashImage.
func (f *File) CRC16(region xgrid.Region) uint16 {
	f.lock.Lock()
	defer f.lock.Unlock()
	if region == xgrid.RegionRunning {
		return xgrid.CRC16(f.running)
	}
	if err := f.openStaging(); err != nil {
		glog.Errorf("staging %s: %v", f.StagingPath, err)
		return 0
	}
	d := xgrid.NewCRC16Digest()
	if _, err := io.Copy(d, io.NewSectionReader(f.staging, 0, int64(len(f.running)))); err != nil {
		glog.Errorf("read staging %s: %v", f.StagingPath, err)
	}
	return d.Sum16()
}

// InstallAndReset implements xgrid.FlashImage.
func (f *File) InstallAndReset() error {
	f.lock.Lock()
	err := f.install()
	f.lock.Unlock()
	if err != nil {
		return err
	}
	f.Reset()
	return nil
}

func (f *File) install() error {
	if f.staging == nil {
		return fmt.Errorf("nothing staged")
	}
	err := f.staging.Sync()
	if e := f.staging.Close(); err == nil {
		err = e
	}
	f.staging = nil
	if err != nil {
		return err
	}
	if err = os.Rename(f.StagingPath, f.Path); err != nil {
		return err
	}
	return f.load()
}

// Reset implements xgrid.FlashImage.
func (f *File) Reset() {
	glog.Infof("reset %s", f.Path)
	if fn := f.OnReset; fn != nil {
		fn()
	}
}

// Close releases the staging file.
func (f *File) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.staging == nil {
		return nil
	}
	err := f.staging.Close()
	f.staging = nil
	return err
}
