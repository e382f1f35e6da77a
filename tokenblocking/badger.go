package tokenblocking

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
)

var (
	entryPrefix = []byte("blocklist/entry/")
	sequenceKey = []byte("blocklist/sequence")
)

// BadgerConfig configures a persistent blocklist.
type BadgerConfig struct {
	// Path is the database directory. Empty keeps the database in memory.
	Path string
	// Passphrase encrypts the database at rest when set.
	Passphrase []byte
}

// BadgerBlocklist persists entries in a badger database.
type BadgerBlocklist struct {
	db       *badger.DB
	sequence *badger.Sequence
	log      *slog.Logger
}

// NewBadgerBlocklist opens or creates the database described by config.
func NewBadgerBlocklist(config BadgerConfig, log *slog.Logger) (*BadgerBlocklist, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.Path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	if len(config.Passphrase) > 0 {
		key := cryptoutils.DerivePassphraseKey(config.Passphrase, "blocklist")
		opts = opts.WithEncryptionKey(key).WithIndexCacheSize(16 << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open blocklist database: %w", err)
	}
	sequence, err := db.GetSequence(sequenceKey, 1)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not open blocklist id sequence: %w", err)
	}

	log.Info("opened blocklist", "path", config.Path, "encrypted", len(config.Passphrase) > 0)
	return &BadgerBlocklist{db: db, sequence: sequence, log: log}, nil
}

// Close releases the id sequence and closes the database.
func (b *BadgerBlocklist) Close() error {
	return errors.Join(b.sequence.Release(), b.db.Close())
}

func entryKey(id int64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], uint64(id))
	return key
}

func (b *BadgerBlocklist) Size() (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(entryPrefix); it.ValidForPrefix(entryPrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (b *BadgerBlocklist) AllEntries() ([]interfaces.BlocklistEntry, error) {
	return b.scan(func(interfaces.BlocklistEntry) bool { return true })
}

func (b *BadgerBlocklist) AllEntriesMatching(token interfaces.TokenIdentifier) ([]interfaces.BlocklistEntry, error) {
	return b.scan(func(e interfaces.BlocklistEntry) bool { return e.Blocks(token) })
}

// scan walks entries in id order since keys encode ids big-endian.
func (b *BadgerBlocklist) scan(match func(interfaces.BlocklistEntry) bool) ([]interfaces.BlocklistEntry, error) {
	var result []interfaces.BlocklistEntry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(entryPrefix); it.ValidForPrefix(entryPrefix); it.Next() {
			var entry interfaces.BlocklistEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("corrupt blocklist entry %x: %w", it.Item().Key(), err)
			}
			if match(entry) {
				result = append(result, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BadgerBlocklist) EntryByID(id int64) (interfaces.BlocklistEntry, error) {
	var entry interfaces.BlocklistEntry
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = getEntry(txn, id)
		return err
	})
	return entry, err
}

func getEntry(txn *badger.Txn, id int64) (interfaces.BlocklistEntry, error) {
	var entry interfaces.BlocklistEntry
	item, err := txn.Get(entryKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entry, interfaces.ErrBlocklistEntryNotFound
	}
	if err != nil {
		return entry, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	return entry, err
}

func (b *BadgerBlocklist) Add(target interfaces.TokenIdentifier, metadata interfaces.BlocklistEntryMetadata) (int64, error) {
	next, err := b.sequence.Next()
	if err != nil {
		return 0, fmt.Errorf("could not allocate blocklist id: %w", err)
	}
	id := int64(next) + 1

	entry := interfaces.BlocklistEntry{ID: id, Target: target, Metadata: metadata}
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(id), data)
	}); err != nil {
		return 0, fmt.Errorf("could not store blocklist entry: %w", err)
	}

	b.log.Info("added blocklist entry", "id", id, "subject", target.Subject, "userGroup", target.UserGroup, "issuer", metadata.Issuer)
	return id, nil
}

func (b *BadgerBlocklist) RemoveByID(id int64) (interfaces.BlocklistEntry, error) {
	var entry interfaces.BlocklistEntry
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		entry, err = getEntry(txn, id)
		if err != nil {
			return err
		}
		return txn.Delete(entryKey(id))
	})
	if err != nil {
		return interfaces.BlocklistEntry{}, err
	}

	b.log.Info("removed blocklist entry", "id", id)
	return entry, nil
}
