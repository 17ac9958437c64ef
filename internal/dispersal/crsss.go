package dispersal

import "github.com/chintran27/cdstore-go/internal/cdserrors"

// encodeCRSSS implements spec.md §4.5's CRSSS encode: the aligned secret is
// split into numGroups groups of (k-r) words; each group is extended with r
// hash rows, then dispersed through the n x k Cauchy matrix.
func (c *Codec) encodeCRSSS(secret []byte) ([]Share, error) {
	k := c.params.K()
	r := c.params.R
	w := c.word
	secretRows := k - r

	groupBytes := w * secretRows
	aligned := alignUp(len(secret), groupBytes)
	padded := padZero(secret, aligned)
	numGroups := aligned / groupBytes

	shareSize := w * numGroups
	shares := make([]Share, c.params.N)
	for i := range shares {
		shares[i] = Share{ID: i, Data: make([]byte, shareSize)}
	}

	for g := 0; g < numGroups; g++ {
		group := padded[g*groupBytes : (g+1)*groupBytes]

		rows := make([][]byte, k)
		for j := 0; j < secretRows; j++ {
			rows[j] = group[j*w : (j+1)*w]
		}
		for j := 0; j < r; j++ {
			h := c.prim.Hash(append(append([]byte{}, group...), byte(j)))
			rows[secretRows+j] = h
		}

		out := c.dist.MulVector(rows, w)
		for i := 0; i < c.params.N; i++ {
			copy(shares[i].Data[g*w:(g+1)*w], out[i])
		}
	}

	return shares, nil
}

// decodeCRSSS implements spec.md §4.5's CRSSS decode: invert the selected
// k-row submatrix, recover the k rows per group, then verify the r hash
// rows against a recomputation from the recovered secret rows.
func (c *Codec) decodeCRSSS(shares []Share, secretSize int) ([]byte, error) {
	k := c.params.K()
	r := c.params.R
	w := c.word
	secretRows := k - r

	if len(shares) == 0 || len(shares[0].Data)%w != 0 {
		return nil, cdserrors.New(cdserrors.KindBadInput, "dispersal: share size not word-aligned")
	}
	numGroups := len(shares[0].Data) / w

	ids := make([]int, k)
	for i, s := range shares {
		ids[i] = s.ID
	}
	sub := c.dist.Rows(ids)
	inv, err := sub.Invert()
	if err != nil {
		return nil, err
	}

	groupBytes := w * secretRows
	out := make([]byte, numGroups*groupBytes)

	for g := 0; g < numGroups; g++ {
		col := make([][]byte, k)
		for i, s := range shares {
			col[i] = s.Data[g*w : (g+1)*w]
		}
		rows := inv.MulVector(col, w)

		group := make([]byte, 0, groupBytes)
		for j := 0; j < secretRows; j++ {
			group = append(group, rows[j]...)
		}
		for j := 0; j < r; j++ {
			want := c.prim.Hash(append(append([]byte{}, group...), byte(j)))
			got := rows[secretRows+j]
			if !bytesEqual(want, got) {
				return nil, cdserrors.New(cdserrors.KindIntegrity, "dispersal: CRSSS group hash mismatch")
			}
		}
		copy(out[g*groupBytes:(g+1)*groupBytes], group)
	}

	if secretSize > len(out) {
		return nil, cdserrors.New(cdserrors.KindBadInput, "dispersal: secretSize larger than recovered data")
	}
	return out[:secretSize], nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
