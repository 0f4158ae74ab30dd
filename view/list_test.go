package view

import (
	"context"
	stdsql "database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/blaze/dialect"
	"github.com/syssam/blaze/dialect/sql"
	"github.com/syssam/blaze/metamodel"
)

type Curator struct {
	Name  string
	Email *string
}

type SongView struct {
	State
	ID    int64
	Title string
}

type TrackView struct {
	State
	ID    int64
	Title string `view:"title,updatable"`
}

type PlaylistView struct {
	State
	ID      int64
	Name    string       `view:"name,updatable"`
	Curator *Curator     `view:"curator,updatable"`
	Songs   []*SongView  `view:"songs,updatable"`
	SongIDs []int64      `view:"songs.id"`
	Tracks  []*TrackView `view:"tracks,updatable,cascade=persist"`
}

type PlaylistSongs struct {
	State
	ID    int64
	Songs []SongView `view:"songs,fetch=multiset"`
}

func playlists(t testing.TB) *metamodel.Metamodel {
	t.Helper()
	mm, err := metamodel.New(
		metamodel.Entity("Playlist").Attributes(
			metamodel.ID("id"),
			metamodel.String("name"),
			metamodel.Embedded("curator",
				metamodel.String("name"),
				metamodel.String("email").Optional(),
			),
			metamodel.OneToMany("tracks", "Track", "playlist").OrderColumn("position"),
			metamodel.ManyToMany("songs", "Song").OrderColumn("song_order"),
		),
		metamodel.Entity("Track").Attributes(
			metamodel.ID("id"),
			metamodel.String("title"),
			metamodel.ManyToOne("playlist", "Playlist"),
			metamodel.Int("position").Optional(),
		),
		metamodel.Entity("Song").Attributes(
			metamodel.ID("id"),
			metamodel.String("title"),
		),
	)
	require.NoError(t, err)
	return mm
}

// openPlaylists returns a manager of an in-memory database holding two
// playlists. The first one lists song 3 twice and has two tracks.
func openPlaylists(t testing.TB) (*Manager, *stdsql.DB) {
	t.Helper()
	db, err := stdsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"create table playlist (id integer primary key, name text not null, curator_name text, curator_email text)",
		"create table track (id integer primary key, title text not null, playlist_id integer, position integer)",
		"create table song (id integer primary key, title text not null)",
		"create table playlist_songs (playlist_id integer not null, song_id integer not null, song_order integer not null)",
		"insert into playlist (id, name, curator_name, curator_email) values (1, 'Mix', 'Ann', null), (2, 'Empty', null, null)",
		"insert into song (id, title) values (1, 'a'), (2, 'b'), (3, 'c')",
		"insert into playlist_songs (playlist_id, song_id, song_order) values (1, 3, 0), (1, 1, 1), (1, 3, 2)",
		"insert into track (id, title, playlist_id, position) values (10, 'x', 1, 1), (11, 'y', 1, 0)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	m, err := NewManager(playlists(t), sql.OpenDB(dialect.SQLite, db),
		WithViews(
			Type[SongView]("Song"),
			Type[TrackView]("Track", Creatable()),
			Type[PlaylistView]("Playlist", Creatable()),
			Type[PlaylistSongs]("Playlist"),
		),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return m, db
}

func songOrder(t testing.TB, db *stdsql.DB, playlist int64) []int64 {
	t.Helper()
	rows, err := db.Query("select song_id from playlist_songs where playlist_id = ? order by song_order", playlist)
	require.NoError(t, err)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func titles(songs []*SongView) []string {
	ts := make([]string, len(songs))
	for i, s := range songs {
		ts[i] = s.Title
	}
	return ts
}

func TestIndexedListLoad(t *testing.T) {
	m, _ := openPlaylists(t)
	ctx := context.Background()

	p, err := FindByID[*PlaylistView](ctx, m, int64(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "c"}, titles(p.Songs))
	assert.Equal(t, []int64{3, 1, 3}, p.SongIDs)
	require.Len(t, p.Tracks, 2)
	assert.Equal(t, "y", p.Tracks[0].Title)
	assert.Equal(t, "x", p.Tracks[1].Title)

	ps, err := FindByID[*PlaylistSongs](ctx, m, int64(1))
	require.NoError(t, err)
	require.Len(t, ps.Songs, 3)
	assert.Equal(t, []string{"c", "a", "c"}, []string{ps.Songs[0].Title, ps.Songs[1].Title, ps.Songs[2].Title})
}

func TestIndexedListChanges(t *testing.T) {
	m, _ := openPlaylists(t)
	p, err := FindByID[*PlaylistView](context.Background(), m, int64(1))
	require.NoError(t, err)

	p.Tracks[0], p.Tracks[1] = p.Tracks[1], p.Tracks[0]
	cm, err := m.Changes(p)
	require.NoError(t, err)
	tracks, err := cm.Get("tracks")
	require.NoError(t, err)
	assert.Equal(t, Updated, tracks.Kind)
	assert.True(t, tracks.Reordered)
	assert.Empty(t, tracks.Added)
	assert.Empty(t, tracks.Removed)

	// Swapping equal elements keeps the list.
	p.Tracks[0], p.Tracks[1] = p.Tracks[1], p.Tracks[0]
	p.Songs[0], p.Songs[2] = p.Songs[2], p.Songs[0]
	dirty, err := m.IsDirty(p)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestIndexedListFlush(t *testing.T) {
	m, db := openPlaylists(t)
	ctx := context.Background()
	p, err := FindByID[*PlaylistView](ctx, m, int64(1))
	require.NoError(t, err)

	b, err := Reference[*SongView](m, int64(2))
	require.NoError(t, err)
	p.Songs = append(p.Songs, b)
	stmts, err := m.Plan(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []Statement{{
		SQL:  "insert into playlist_songs (playlist_id, song_id, song_order) values (?, ?, ?)",
		Args: []any{int64(1), int64(2), 3},
	}}, stmts, "appending only inserts the new rows")
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, []int64{3, 1, 3, 2}, songOrder(t, db, 1))

	p.Songs[1], p.Songs[2] = p.Songs[2], p.Songs[1]
	stmts, err = m.Plan(ctx, p)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, Statement{
		SQL:  "delete from playlist_songs where playlist_songs.playlist_id = ? and playlist_songs.song_order >= ?",
		Args: []any{int64(1), 1},
	}, stmts[0])
	assert.Equal(t, Statement{
		SQL:  "insert into playlist_songs (playlist_id, song_id, song_order) values (?, ?, ?), (?, ?, ?), (?, ?, ?)",
		Args: []any{int64(1), int64(3), 1, int64(1), int64(1), 2, int64(1), int64(2), 3},
	}, stmts[1])
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, []int64{3, 3, 1, 2}, songOrder(t, db, 1))

	p.Songs = p.Songs[:2]
	stmts, err = m.Plan(ctx, p)
	require.NoError(t, err)
	require.Len(t, stmts, 1, "removing the tail only deletes rows")
	assert.Equal(t, []any{int64(1), 2}, stmts[0].Args)
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, []int64{3, 3}, songOrder(t, db, 1))

	dirty, err := m.IsDirty(p)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestIndexedListPersist(t *testing.T) {
	m, db := openPlaylists(t)
	ctx := context.Background()

	p, err := Create[*PlaylistView](m)
	require.NoError(t, err)
	p.Name = "New"
	p.Curator = &Curator{Name: "Eve"}
	for range 2 {
		s, err := Reference[*SongView](m, int64(3))
		require.NoError(t, err)
		p.Songs = append(p.Songs, s)
	}
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, []int64{3, 3}, songOrder(t, db, 3))
	assert.Equal(t, 1, count(t, db, "select count(*) from playlist where id = 3 and curator_name = 'Eve' and curator_email is null"))
}

func TestIndexedOneToManyFlush(t *testing.T) {
	m, db := openPlaylists(t)
	ctx := context.Background()
	p, err := FindByID[*PlaylistView](ctx, m, int64(1))
	require.NoError(t, err)
	x, y := p.Tracks[1], p.Tracks[0]

	z, err := Create[*TrackView](m)
	require.NoError(t, err)
	z.Title = "z"
	p.Tracks = []*TrackView{x, z, y}
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, int64(12), z.ID)
	positions := func() map[int64]int {
		rows, err := db.Query("select id, position from track where playlist_id = 1")
		require.NoError(t, err)
		defer rows.Close()
		pos := make(map[int64]int)
		for rows.Next() {
			var id, n int64
			require.NoError(t, rows.Scan(&id, &n))
			pos[id] = int(n)
		}
		require.NoError(t, rows.Err())
		return pos
	}
	assert.Equal(t, map[int64]int{10: 0, 12: 1, 11: 2}, positions())

	p.Tracks = []*TrackView{z, y}
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, map[int64]int{12: 0, 11: 1}, positions())
	assert.Equal(t, 1, count(t, db, "select count(*) from track where id = 10 and playlist_id is null and position is null"))

	p, err = FindByID[*PlaylistView](ctx, m, int64(1))
	require.NoError(t, err)
	require.Len(t, p.Tracks, 2)
	assert.Equal(t, "z", p.Tracks[0].Title)
	assert.Equal(t, "y", p.Tracks[1].Title)
}

func TestEmbedded(t *testing.T) {
	m, db := openPlaylists(t)
	ctx := context.Background()

	empty, err := FindByID[*PlaylistView](ctx, m, int64(2))
	require.NoError(t, err)
	assert.Nil(t, empty.Curator, "all columns null")

	p, err := FindByID[*PlaylistView](ctx, m, int64(1))
	require.NoError(t, err)
	require.NotNil(t, p.Curator)
	assert.Equal(t, Curator{Name: "Ann"}, *p.Curator)

	email := "ann@example.com"
	p.Curator.Email = &email
	cm, err := m.Changes(p)
	require.NoError(t, err)
	assert.Equal(t, Updated, cm.Kind)
	curator, err := cm.Get("curator")
	require.NoError(t, err)
	assert.Equal(t, Updated, curator.Kind)
	require.NotNil(t, curator.Nested)
	assert.Equal(t, "Curator", curator.Nested.View)
	ec, err := cm.Get("curator.email")
	require.NoError(t, err)
	assert.Equal(t, Updated, ec.Kind)
	assert.Nil(t, ec.Initial)
	assert.Equal(t, email, ec.Current)
	nc, err := cm.Get("curator.name")
	require.NoError(t, err)
	assert.Equal(t, None, nc.Kind)

	stmts, err := m.Plan(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []Statement{{
		SQL:  "update playlist set curator_email = ? where playlist.id = ?",
		Args: []any{email, int64(1)},
	}}, stmts, "only the changed field is written")
	require.NoError(t, m.Save(ctx, p))
	assert.Equal(t, 1, count(t, db, "select count(*) from playlist where id = 1 and curator_email = ?", email))

	p.Curator = nil
	stmts, err = m.Plan(ctx, p)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "update playlist set curator_name = ?, curator_email = ? where playlist.id = ?", stmts[0].SQL)
	assert.Equal(t, []any{nil, nil, int64(1)}, stmts[0].Args)
	require.NoError(t, m.Save(ctx, p))

	p, err = FindByID[*PlaylistView](ctx, m, int64(1))
	require.NoError(t, err)
	assert.Nil(t, p.Curator)
}

func TestEmbeddedErrors(t *testing.T) {
	drv, _ := openSQLite(t)
	type scalar struct {
		State
		ID      int64
		Curator string
	}
	type wrongField struct {
		State
		ID      int64
		Curator struct{ Phone string }
	}
	type updatableField struct {
		State
		ID      int64
		Curator struct {
			Name string `view:"name,updatable"`
		}
	}
	type collection struct {
		State
		ID      int64
		Curator []Curator
	}
	for name, reg := range map[string]Registration{
		"scalar":          Type[scalar]("Playlist"),
		"unknown field":   Type[wrongField]("Playlist"),
		"updatable field": Type[updatableField]("Playlist"),
		"collection":      Type[collection]("Playlist"),
	} {
		_, err := NewManager(playlists(t), drv, WithViews(Type[SongView]("Song"), reg))
		assert.Error(t, err, name)
	}
}
