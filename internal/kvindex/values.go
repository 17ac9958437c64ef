package kvindex

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// InodeKind distinguishes directory from file inodes (spec.md §3).
type InodeKind byte

const (
	KindDir  InodeKind = 0
	KindFile InodeKind = 1
)

// FileVersion is one (recipeFileName, recipeFileOffset) entry for a FILE
// inode, newest version first (spec.md §3).
type FileVersion struct {
	RecipeFileName   [16]byte
	RecipeFileOffset int64
}

// InodeValue is the decoded form of an inode-index entry (spec.md §3):
// a header, a short name, then either a DIR's child fingerprints or a
// FILE's version list.
type InodeValue struct {
	UserID     int32
	Kind       InodeKind
	ShortName  string
	Children   [][32]byte    // DIR only
	Versions   []FileVersion // FILE only; ChildCount means version count
}

// Encode serializes an InodeValue per spec.md §3's header-then-payload
// layout: {userID, shortNameLen, kind, childCount} ‖ shortName ‖ payload.
func (v *InodeValue) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	childCount := int32(len(v.Children))
	if v.Kind == KindFile {
		childCount = int32(len(v.Versions))
	}

	header := struct {
		UserID       int32
		ShortNameLen int32
		Kind         byte
		ChildCount   int32
	}{v.UserID, int32(len(v.ShortName)), byte(v.Kind), childCount}

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: encoding inode header")
	}
	buf.WriteString(v.ShortName)

	switch v.Kind {
	case KindDir:
		for _, c := range v.Children {
			buf.Write(c[:])
		}
	case KindFile:
		for _, fv := range v.Versions {
			if err := binary.Write(buf, binary.LittleEndian, fv); err != nil {
				return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: encoding file version")
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeInodeValue is the inverse of Encode.
func DecodeInodeValue(raw []byte) (*InodeValue, error) {
	r := bytes.NewReader(raw)
	var header struct {
		UserID       int32
		ShortNameLen int32
		Kind         byte
		ChildCount   int32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: decoding inode header")
	}
	name := make([]byte, header.ShortNameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: decoding short name")
	}

	v := &InodeValue{
		UserID:    header.UserID,
		Kind:      InodeKind(header.Kind),
		ShortName: string(name),
	}

	switch v.Kind {
	case KindDir:
		v.Children = make([][32]byte, header.ChildCount)
		for i := range v.Children {
			if _, err := io.ReadFull(r, v.Children[i][:]); err != nil {
				return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: decoding child fingerprint")
			}
		}
	case KindFile:
		v.Versions = make([]FileVersion, header.ChildCount)
		for i := range v.Versions {
			if err := binary.Read(r, binary.LittleEndian, &v.Versions[i]); err != nil {
				return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: decoding file version")
			}
		}
	default:
		return nil, cdserrors.New(cdserrors.KindBadInput, "kvindex: unknown inode kind")
	}
	return v, nil
}

// ShareUserRef is one user's reference count on a share (spec.md §3).
type ShareUserRef struct {
	UserID   int32
	RefCount int32
}

// ShareValue is the decoded form of a share-index entry: where the share
// body lives, its size, and the set of users referencing it.
type ShareValue struct {
	ContainerName   [16]byte
	ContainerOffset int64
	ShareSize       int32
	Users           []ShareUserRef
}

// Encode serializes a ShareValue: {containerName, containerOffset,
// shareSize, userCount} ‖ userCount x {userID, refCount}.
func (v *ShareValue) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	header := struct {
		ContainerName   [16]byte
		ContainerOffset int64
		ShareSize       int32
		UserCount       int32
	}{v.ContainerName, v.ContainerOffset, v.ShareSize, int32(len(v.Users))}

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: encoding share header")
	}
	for _, u := range v.Users {
		if err := binary.Write(buf, binary.LittleEndian, u); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: encoding share user ref")
		}
	}
	return buf.Bytes(), nil
}

// DecodeShareValue is the inverse of Encode.
func DecodeShareValue(raw []byte) (*ShareValue, error) {
	r := bytes.NewReader(raw)
	var header struct {
		ContainerName   [16]byte
		ContainerOffset int64
		ShareSize       int32
		UserCount       int32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: decoding share header")
	}
	v := &ShareValue{
		ContainerName:   header.ContainerName,
		ContainerOffset: header.ContainerOffset,
		ShareSize:       header.ShareSize,
		Users:           make([]ShareUserRef, header.UserCount),
	}
	for i := range v.Users {
		if err := binary.Read(r, binary.LittleEndian, &v.Users[i]); err != nil {
			return nil, cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: decoding share user ref")
		}
	}
	return v, nil
}

// UserRefCount returns userID's ref count and whether it is present.
func (v *ShareValue) UserRefCount(userID int32) (int32, bool) {
	for _, u := range v.Users {
		if u.UserID == userID {
			return u.RefCount, true
		}
	}
	return 0, false
}

// BumpUser increments userID's ref count, or appends a new ref of 1 if
// userID isn't yet present (spec.md §4.9 second-stage dedup step 4b).
func (v *ShareValue) BumpUser(userID int32) {
	for i := range v.Users {
		if v.Users[i].UserID == userID {
			v.Users[i].RefCount++
			return
		}
	}
	v.Users = append(v.Users, ShareUserRef{UserID: userID, RefCount: 1})
}
