package fat

import (
	"io"

	emerrors "github.com/segger-go/emfile/errors"
)

// IODevice adapts any io.ReaderAt+io.WriterAt (a file, or an
// xaionaro-go/bytesextra in-memory buffer) into a SectorDevice of fixed
// BytesPerSector.
type IODevice struct {
	RA             io.ReaderAt
	WA             io.WriterAt
	BytesPerSector uint32
}

func (d *IODevice) ReadSector(index uint32, buf []byte) error {
	n, err := d.RA.ReadAt(buf[:d.BytesPerSector], int64(index)*int64(d.BytesPerSector))
	if err != nil && err != io.EOF {
		return emerrors.ReadFailure.WrapError(err)
	}
	for i := n; i < int(d.BytesPerSector); i++ {
		buf[i] = 0
	}
	return nil
}

func (d *IODevice) WriteSector(index uint32, buf []byte) error {
	_, err := d.WA.WriteAt(buf[:d.BytesPerSector], int64(index)*int64(d.BytesPerSector))
	if err != nil {
		return emerrors.WriteFailure.WrapError(err)
	}
	return nil
}
