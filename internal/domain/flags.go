package domain

// OpenFlags configure a database handle at open time. Flags are fixed for
// the lifetime of a handle; there is no way to change them afterwards.
type OpenFlags uint32

const (
	OpenReadWrite           OpenFlags = 0x0000_0000
	OpenReadOnly            OpenFlags = 0x0000_0001
	CreateIfNecessary       OpenFlags = 0x1000_0000
	NoLocalizedCollators    OpenFlags = 0x0000_0010
	EnableWriteAheadLogging OpenFlags = 0x2000_0000
)

func (f OpenFlags) ReadOnly() bool {
	return f&OpenReadOnly != 0
}

func (f OpenFlags) Create() bool {
	return f&CreateIfNecessary != 0
}

func (f OpenFlags) WALEnabled() bool {
	return f&EnableWriteAheadLogging != 0
}

func (f OpenFlags) LocalizedCollators() bool {
	return f&NoLocalizedCollators == 0
}
