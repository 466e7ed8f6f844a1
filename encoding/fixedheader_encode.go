package encoding

import "io"

// BuildPublishFlags assembles the PUBLISH fixed-header flag nibble from the
// DUP/QoS/Retain fields, mirroring the decode side in ParseFixedHeader.
func (fh *FixedHeader) BuildPublishFlags() byte {
	var flags byte
	if fh.DUP {
		flags |= 0x08
	}
	flags |= byte(fh.QoS) << 1
	if fh.Retain {
		flags |= 0x01
	}
	return flags
}

// EncodeFixedHeader writes the MQTT 5.0 fixed header (control byte plus
// Variable Byte Integer remaining length) to w.
func (fh *FixedHeader) EncodeFixedHeader(w io.Writer) error {
	controlByte := byte(fh.Type)<<4 | (fh.Flags & 0x0F)
	if err := writeByte(w, controlByte); err != nil {
		return err
	}

	lengthBytes, err := EncodeVariableByteInteger(fh.RemainingLength)
	if err != nil {
		return err
	}
	_, err = w.Write(lengthBytes)
	return err
}

// EncodeFixedHeader311 is the MQTT 3.1.1 fixed header encoder; the wire
// format is identical to v5.0 for the fixed header, so it delegates after
// rejecting AUTH, which does not exist in 3.1.1.
func (fh *FixedHeader) EncodeFixedHeader311(w io.Writer) error {
	if fh.Type == AUTH {
		return ErrInvalidType
	}
	return fh.EncodeFixedHeader(w)
}

// EncodeFixedHeaderToBytes is the zero-allocation counterpart of
// EncodeFixedHeader, writing into a caller-supplied buffer and returning the
// number of bytes written.
func (fh *FixedHeader) EncodeFixedHeaderToBytes(buf []byte) (int, error) {
	if len(buf) < 1 {
		return 0, ErrBufferTooSmall
	}
	buf[0] = byte(fh.Type)<<4 | (fh.Flags & 0x0F)

	n, err := EncodeVariableByteIntegerTo(buf, 1, fh.RemainingLength)
	if err != nil {
		return 0, err
	}
	return 1 + n, nil
}
