package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	// CurrentSchemaVersion is the version written by [Encode].
	CurrentSchemaVersion uint8 = 2

	sessionFormatVersionV1 uint8 = 1
)

const (
	maxShortField = math.MaxUint8
	maxTokenField = math.MaxUint16
	maxRoles      = math.MaxUint8
)

// ErrUnsupportedSchemaVersion is returned by [Decode] for unknown versions.
var ErrUnsupportedSchemaVersion = errors.New("unsupported session schema version")

// Encode serializes s with the current schema version.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.Grow(64 + len(s.AccessToken) + len(s.RefreshToken) + len(s.UserID) + len(s.Username))

	buf.WriteByte(CurrentSchemaVersion)

	if err := writeTokenField(&buf, "accessToken", s.AccessToken); err != nil {
		return nil, err
	}
	if err := writeTokenField(&buf, "refreshToken", s.RefreshToken); err != nil {
		return nil, err
	}
	if err := writeShortField(&buf, "userID", s.UserID); err != nil {
		return nil, err
	}
	if err := writeShortField(&buf, "username", s.Username); err != nil {
		return nil, err
	}

	if len(s.Roles) > maxRoles {
		return nil, errors.New("too many roles")
	}
	buf.WriteByte(byte(len(s.Roles)))
	for _, role := range s.Roles {
		if err := writeShortField(&buf, "role", role); err != nil {
			return nil, err
		}
	}

	_ = binary.Write(&buf, binary.BigEndian, s.ClientType)
	_ = binary.Write(&buf, binary.BigEndian, s.AccessExpiresIn.Milliseconds())
	_ = binary.Write(&buf, binary.BigEndian, s.RefreshExpiresIn.Milliseconds())

	// v2
	_ = binary.Write(&buf, binary.BigEndian, s.IssuedAt)

	return buf.Bytes(), nil
}

// Decode parses a payload written by any supported schema version. The
// returned session always reports [CurrentSchemaVersion]; fields added after
// the payload's version keep their zero value.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion && version != sessionFormatVersionV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchemaVersion, version)
	}

	s := &Session{SchemaVersion: CurrentSchemaVersion}

	if s.AccessToken, err = readTokenField(reader); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = readTokenField(reader); err != nil {
		return nil, err
	}
	if s.UserID, err = readShortField(reader); err != nil {
		return nil, err
	}
	if s.Username, err = readShortField(reader); err != nil {
		return nil, err
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		s.Roles = make([]string, 0, count)
	}
	for i := 0; i < int(count); i++ {
		role, err := readShortField(reader)
		if err != nil {
			return nil, err
		}
		s.Roles = append(s.Roles, role)
	}

	if err := binary.Read(reader, binary.BigEndian, &s.ClientType); err != nil {
		return nil, err
	}
	var accessMillis, refreshMillis int64
	if err := binary.Read(reader, binary.BigEndian, &accessMillis); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &refreshMillis); err != nil {
		return nil, err
	}
	s.AccessExpiresIn = time.Duration(accessMillis) * time.Millisecond
	s.RefreshExpiresIn = time.Duration(refreshMillis) * time.Millisecond

	if version >= 2 {
		if err := binary.Read(reader, binary.BigEndian, &s.IssuedAt); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func writeShortField(buf *bytes.Buffer, name, v string) error {
	if len(v) > maxShortField {
		return fmt.Errorf("%s too long", name)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func writeTokenField(buf *bytes.Buffer, name, v string) error {
	if len(v) > maxTokenField {
		return fmt.Errorf("%s too long", name)
	}
	var size [2]byte
	binary.BigEndian.PutUint16(size[:], uint16(len(v)))
	buf.Write(size[:])
	buf.WriteString(v)
	return nil
}

func readShortField(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readTokenField(r *bytes.Reader) (string, error) {
	var size [2]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return "", err
	}
	return readN(r, int(binary.BigEndian.Uint16(size[:])))
}

func readN(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
