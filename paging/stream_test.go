package paging

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/interfaces"
)

type pos struct {
	index uint64
	page  uint32
}

func checkSequence(order *StreamOrder, sequence []pos) error {
	for _, p := range sequence {
		if err := order.Check(&DataPayloadPage{Index: p.index, PageNumber: p.page}); err != nil {
			return err
		}
	}
	return nil
}

func TestStreamOrder(t *testing.T) {
	tests := []struct {
		name     string
		sequence []pos
		err      error
	}{
		{"in order", []pos{{0, 0}, {0, 1}, {0, 2}, {1, 0}}, nil},
		{"repeated page", []pos{{0, 0}, {0, 1}, {0, 1}}, interfaces.ErrPageOutOfOrder},
		{"skipped page", []pos{{0, 0}, {0, 1}, {0, 3}}, interfaces.ErrPageOutOfOrder},
		{"file regression", []pos{{0, 0}, {1, 0}, {0, 0}}, interfaces.ErrFileOutOfOrder},
		{"skipped file", []pos{{0, 0}, {0, 1}, {2, 0}}, nil},
		{"first file not at zero", []pos{{3, 0}, {3, 1}}, nil},
		{"new file not starting at zero", []pos{{0, 0}, {1, 1}}, interfaces.ErrPageOutOfOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSequence(&StreamOrder{}, tt.sequence)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStreamOrderLastPageNumber(t *testing.T) {
	order := &StreamOrder{latestIndex: 7, expectedPage: math.MaxUint32 - 1}
	require.NoError(t, checkSequence(order, []pos{{7, math.MaxUint32 - 1}, {7, math.MaxUint32}}))

	err := checkSequence(order, []pos{{7, 0}})
	var orderErr *OrderError
	require.ErrorAs(t, err, &orderErr)
	assert.ErrorIs(t, err, interfaces.ErrPageOutOfOrder)
	assert.Equal(t, uint64(math.MaxUint32)+1, orderErr.Expected)

	// The next file starts over.
	assert.NoError(t, checkSequence(order, []pos{{8, 0}}))
}

func TestOrderErrorCarriesValues(t *testing.T) {
	err := checkSequence(&StreamOrder{}, []pos{{0, 0}, {0, 1}, {0, 3}})
	var orderErr *OrderError
	require.ErrorAs(t, err, &orderErr)
	assert.Equal(t, uint64(2), orderErr.Expected)
	assert.Equal(t, uint64(3), orderErr.Actual)
	assert.Contains(t, err.Error(), "expected page 2, got 3")
}

func TestPaginateAndAssemble(t *testing.T) {
	key := testKey(t)
	metadata := Metadata{Tag: "Device.Serial", EncryptionScheme: LatestEncryptionScheme}

	for _, size := range []int{0, 1, 15, 16, 17, 64} {
		plaintext := bytes.Repeat([]byte{'x'}, size)

		var pages []DataPayloadPage
		for page, err := range Paginate(bytes.NewReader(plaintext), 16, key, metadata, 4).All() {
			require.NoError(t, err)
			pages = append(pages, *page)
		}

		expected := max(1, (size+15)/16)
		require.Len(t, pages, expected, "size %d", size)
		for i, page := range pages {
			assert.Equal(t, uint64(4), page.Index)
			assert.Equal(t, uint32(i), page.PageNumber)
		}

		assembled, err := Assemble(PagesOf(pages), key, metadata)
		require.NoError(t, err)
		assert.Equal(t, plaintext, assembled)
		assert.NotNil(t, assembled, "size %d", size)
	}
}

func TestAssembleRejectsReorderedPages(t *testing.T) {
	key := testKey(t)
	metadata := Metadata{EncryptionScheme: LatestEncryptionScheme}

	var pages []DataPayloadPage
	for page, err := range Paginate(bytes.NewReader(make([]byte, 48)), 16, key, metadata, 0).All() {
		require.NoError(t, err)
		pages = append(pages, *page)
	}
	pages[1], pages[2] = pages[2], pages[1]

	_, err := Assemble(PagesOf(pages), key, metadata)
	assert.ErrorIs(t, err, interfaces.ErrPageOutOfOrder)
}

func TestPageStreamErrorsAreSticky(t *testing.T) {
	failure := errors.New("connection reset")
	calls := 0
	stream := NewPageStream(func() (*DataPayloadPage, error) {
		calls++
		return nil, failure
	})

	_, err := stream.Next()
	assert.ErrorIs(t, err, failure)
	_, err = stream.Next()
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, calls)

	empty := PagesOf(nil)
	_, err = empty.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDigest(t *testing.T) {
	key := testKey(t)
	metadata := Metadata{EncryptionScheme: LatestEncryptionScheme}

	var pages []DataPayloadPage
	for page, err := range Paginate(bytes.NewReader(make([]byte, 40)), 16, key, metadata, 0).All() {
		require.NoError(t, err)
		pages = append(pages, *page)
	}

	a, b := NewDigest(), NewDigest()
	for i := range pages {
		require.NoError(t, a.Add(&pages[i]))
		data, err := pages[i].MarshalBinary()
		require.NoError(t, err)
		b.AddSerialized(data)
	}
	assert.Equal(t, a.Sum64(), b.Sum64())

	c := NewDigest()
	require.NoError(t, c.Add(&pages[0]))
	assert.NotEqual(t, a.Sum64(), c.Sum64())
}
