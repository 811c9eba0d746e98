package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	otpRecordVersionV1 = 1

	otpFlagVerified = 1 << 0
)

// Fixed header consumed by consumeOTPLua: version(1) purpose(1) flags(1)
// attempts(2) maxAttempts(2) createdAt(8) expiresAt(8) codeHash(32).
// The variable tail is Go-only: id, ip, userAgent, ref as uint16
// length-prefixed strings, in that order. Changing the header layout
// requires bumping the version and the Lua offsets together.

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(record.Purpose)

	var flags byte
	if record.Verified {
		flags |= otpFlagVerified
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	for _, s := range []string{record.ID, record.IP, record.UserAgent, record.Ref} {
		if err := writeOTPString(&buf, s); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OTPRecord{
		Purpose:  purpose,
		Verified: flags&otpFlagVerified != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	for _, dst := range []*string{&record.ID, &record.IP, &record.UserAgent, &record.Ref} {
		s, err := readOTPString(reader)
		if err != nil {
			return nil, err
		}
		*dst = s
	}

	return record, nil
}

func writeOTPString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("otp record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readOTPString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
