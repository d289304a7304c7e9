package store

// Tables returns the collection tables in dependency order
func (s *Store) Tables() []string {
	return append([]string(nil), collectionTables...)
}

// GetField reads one column of a row into dest
func (s *Store) GetField(table string, id int64, field string, dest interface{}) error {
	return s.Do(func(c *Conn) error {
		return c.GetField(table, id, field, dest)
	})
}

// SetField updates one column of a row
func (s *Store) SetField(table string, id int64, field string, value interface{}) error {
	return s.Do(func(c *Conn) error {
		return c.SetField(table, id, field, value)
	})
}

// FindOrInsert looks up a row by a unique string column and inserts it when
// missing. Lookup and insert run as one transaction under the store lock, so
// concurrent callers with the same key always get the same row.
func (s *Store) FindOrInsert(table, field, value string) (int64, bool, error) {
	var (
		id      int64
		created bool
	)
	err := s.Transaction(func(c *Conn) error {
		var err error
		id, created, err = c.FindOrInsert(table, field, value)
		return err
	})
	return id, created, err
}

// ListIDsWhere returns ids of rows whose field equals value
func (s *Store) ListIDsWhere(table, field string, value interface{}) ([]int64, error) {
	var ids []int64
	err := s.Do(func(c *Conn) error {
		var err error
		ids, err = c.ListIDsWhere(table, field, value)
		return err
	})
	return ids, err
}

// ListAllIDs returns ids of every row of table
func (s *Store) ListAllIDs(table string) ([]int64, error) {
	var ids []int64
	err := s.Do(func(c *Conn) error {
		var err error
		ids, err = c.ListAllIDs(table)
		return err
	})
	return ids, err
}

// TableSchema returns the columns of table
func (s *Store) TableSchema(table string) ([]Column, error) {
	var columns []Column
	err := s.Do(func(c *Conn) error {
		var err error
		columns, err = c.TableSchema(table)
		return err
	})
	return columns, err
}

// IsEmpty reports whether table has no rows
func (s *Store) IsEmpty(table string) (bool, error) {
	var n int
	err := s.Do(func(c *Conn) error {
		var err error
		n, err = c.Count(table)
		return err
	})
	return n == 0, err
}

// InsertRow inserts a row and returns its id
func (s *Store) InsertRow(table string, columns []string, values ...interface{}) (int64, error) {
	var id int64
	err := s.Do(func(c *Conn) error {
		var err error
		id, err = c.InsertRow(table, columns, values...)
		return err
	})
	return id, err
}

// DeleteRow removes a row by id
func (s *Store) DeleteRow(table string, id int64) error {
	return s.Do(func(c *Conn) error {
		return c.DeleteRow(table, id)
	})
}
