package protocol

// FieldHandler decodes one field whose header has already been read. It
// returns handled=false to have the field skipped.
type FieldHandler func(f FieldHeader) (handled bool, err error)

// ReadStruct runs the field loop of one struct body: it reads headers until
// stop, hands each one to fn and skips every field fn does not handle. It
// returns the number of skipped fields.
func ReadStruct(p Protocol, fn FieldHandler) (int, error) {
	if _, err := p.ReadStructBegin(); err != nil {
		return 0, err
	}
	skipped := 0
	for {
		f, err := p.ReadFieldBegin()
		if err != nil {
			return skipped, err
		}
		if f.Type == Stop {
			break
		}
		handled, err := fn(f)
		if err != nil {
			return skipped, err
		}
		if !handled {
			if err := p.Skip(f.Type); err != nil {
				return skipped, err
			}
			skipped++
		}
		if err := p.ReadFieldEnd(); err != nil {
			return skipped, err
		}
	}
	return skipped, p.ReadStructEnd()
}

// WriteEmptyStruct writes a struct with no fields: a lone stop marker.
func WriteEmptyStruct(p Protocol, name string) error {
	if err := p.WriteStructBegin(name); err != nil {
		return err
	}
	if err := p.WriteFieldStop(); err != nil {
		return err
	}
	return p.WriteStructEnd()
}

// maxPrealloc bounds the capacity reserved from a peer-supplied count;
// larger containers grow as elements actually arrive.
const maxPrealloc = 64

// CapHint returns the initial capacity for a container of size elements.
func CapHint(size int) int {
	return max(0, min(size, maxPrealloc))
}
