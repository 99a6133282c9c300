package auth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/turtacn/guomen/common/errors"
	"github.com/turtacn/guomen/common/log"
)

// Bolt buckets of the snapshot file.
var (
	bucketUsers     = []byte("users")
	bucketDatabases = []byte("databases")
	bucketMeta      = []byte("meta")

	metaKeyAnonymous = []byte("anonymous")
)

// Persister saves the catalog to a single file between runs so the proxy
// can authenticate before the first successful backend load.
//
// Each grant row is encoded little-endian as: user length u32, user bytes,
// ipv4 u32, prefix bits u32, db length i32 (-1 when no database grant was
// recorded), db bytes, password length u32, password bytes. Only rows whose
// host pattern reduces to a numeric prefix are representable; wildcard and
// host name rows are re-fetched from the backends.
type Persister struct {
	path string
	log  log.Logger
}

// NewPersister creates a persister writing to the given file path.
func NewPersister(path string) *Persister {
	return &Persister{path: path, log: log.Component("usersnapshot")}
}

// Path returns the snapshot file path.
func (p *Persister) Path() string {
	return p.path
}

// Save writes the catalog in one transaction, replacing any previous
// content atomically.
func (p *Persister) Save(catalog *Catalog) error {
	return p.SaveTo(catalog, p.path)
}

// SaveTo writes the catalog to an explicit path.
func (p *Persister) SaveTo(catalog *Catalog, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.ErrPersistenceIO.New(path, err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return errors.ErrPersistenceIO.New(path, err)
	}
	defer db.Close()

	skipped := 0
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketDatabases, bucketMeta} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		users := tx.Bucket(bucketUsers)
		seq := uint64(0)
		for _, row := range catalog.Rows() {
			if row.Host.Kind != HostAny && row.Host.Kind != HostPrefix {
				skipped++
				continue
			}
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], seq)
			seq++
			if err := users.Put(key[:], encodeGrantRow(row)); err != nil {
				return err
			}
		}

		databases := tx.Bucket(bucketDatabases)
		for _, name := range catalog.Databases() {
			if err := databases.Put([]byte(name), nil); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		anon := []byte{0}
		if !catalog.LocalhostMatchWildcardHost() {
			anon[0] = 1
		}
		return meta.Put(metaKeyAnonymous, anon)
	})
	if err != nil {
		return errors.ErrPersistenceIO.New(path, err)
	}

	if skipped > 0 {
		p.log.Debugf("%d wildcard/hostname rows not representable in snapshot %s", skipped, path)
	}
	return nil
}

// Load reads a previously saved catalog. A missing file returns (nil, nil);
// any parse error aborts the load and leaves in-memory state untouched.
func (p *Persister) Load() (*Catalog, error) {
	return p.LoadFrom(p.path)
}

// LoadFrom reads a catalog from an explicit path.
func (p *Persister) LoadFrom(path string) (*Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.ErrPersistenceIO.New(path, err)
	}
	defer db.Close()

	catalog := NewCatalog()
	err = db.View(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		if users == nil {
			return fmt.Errorf("users bucket missing")
		}
		if err := users.ForEach(func(_, value []byte) error {
			row, err := decodeGrantRow(value)
			if err != nil {
				return err
			}
			catalog.Add(row)
			return nil
		}); err != nil {
			return err
		}

		if databases := tx.Bucket(bucketDatabases); databases != nil {
			if err := databases.ForEach(func(name, _ []byte) error {
				catalog.AddDatabase(string(name))
				return nil
			}); err != nil {
				return err
			}
		}

		if meta := tx.Bucket(bucketMeta); meta != nil {
			if v := meta.Get(metaKeyAnonymous); len(v) == 1 && v[0] == 1 {
				catalog.anonymous = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrPersistenceIO.New(path, err)
	}
	return catalog, nil
}

// encodeGrantRow serializes one representable row.
func encodeGrantRow(row *GrantRow) []byte {
	var buf bytes.Buffer

	writeBytes := func(b []byte) {
		binary.Write(&buf, binary.LittleEndian, uint32(len(b)))
		buf.Write(b)
	}

	writeBytes([]byte(row.User))
	binary.Write(&buf, binary.LittleEndian, row.Host.Addr)
	binary.Write(&buf, binary.LittleEndian, uint32(row.Host.Bits))

	if !row.AnyDb && row.Db == "" {
		binary.Write(&buf, binary.LittleEndian, int32(-1))
	} else {
		binary.Write(&buf, binary.LittleEndian, int32(len(row.Db)))
		buf.WriteString(row.Db)
	}

	writeBytes([]byte(row.Password))
	return buf.Bytes()
}

// decodeGrantRow is the inverse of encodeGrantRow.
func decodeGrantRow(value []byte) (*GrantRow, error) {
	r := bytes.NewReader(value)

	readBytes := func() ([]byte, error) {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		if uint32(r.Len()) < n {
			return nil, fmt.Errorf("truncated field of %d bytes", n)
		}
		b := make([]byte, n)
		io.ReadFull(r, b)
		return b, nil
	}

	user, err := readBytes()
	if err != nil {
		return nil, fmt.Errorf("user field: %w", err)
	}

	var addr, bits uint32
	if err := binary.Read(r, binary.LittleEndian, &addr); err != nil {
		return nil, fmt.Errorf("address field: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return nil, fmt.Errorf("prefix field: %w", err)
	}
	if bits > 32 {
		return nil, fmt.Errorf("prefix bits %d out of range", bits)
	}

	var dbLen int32
	if err := binary.Read(r, binary.LittleEndian, &dbLen); err != nil {
		return nil, fmt.Errorf("db length field: %w", err)
	}
	db := ""
	anyDb := false
	if dbLen >= 0 {
		if int32(r.Len()) < dbLen {
			return nil, fmt.Errorf("truncated db field of %d bytes", dbLen)
		}
		b := make([]byte, dbLen)
		io.ReadFull(r, b)
		db = string(b)
		anyDb = dbLen == 0
	}

	password, err := readBytes()
	if err != nil {
		return nil, fmt.Errorf("password field: %w", err)
	}

	host := HostPattern{Kind: HostPrefix, Addr: addr, Bits: uint8(bits)}
	if bits == 0 {
		host = HostPattern{Kind: HostAny}
	}

	return &GrantRow{
		User:     string(user),
		Host:     host,
		Db:       db,
		AnyDb:    anyDb,
		Password: string(password),
	}, nil
}
