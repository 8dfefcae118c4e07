// Package journal records finished moves, with the pose the robot reached,
// in a storm database.
package journal

import (
	"math"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// PoseSource supplies the pose recorded with each move, usually the chassis
// odometer.
type PoseSource interface {
	Pose() motion.Pose
}

// Entry is one finished move.
type Entry struct {
	ID           int    `storm:"increment"`
	Type         string `storm:"index"`
	Distance     float64
	Angle        float64
	Direction    float64
	LinearSpeed  float64
	AngularSpeed float64
	Started      time.Time
	Stopped      time.Time

	X       float64
	Y       float64
	Heading float64
}

func (e Entry) Pose() motion.Pose {
	return motion.Pose{X: e.X, Y: e.Y, Heading: e.Heading}
}

func (e Entry) Duration() time.Duration {
	return e.Stopped.Sub(e.Started)
}

// Totals summarises the journal.
type Totals struct {
	Moves    int
	Distance float64
	Rotation float64
}

// Journal is a pilot move listener that stores every finished move.
type Journal struct {
	log   zerolog.Logger
	db    *storm.DB
	poses PoseSource
	now   func() time.Time
}

// Open opens or creates the journal database at path. poses may be nil, in
// which case entries carry a zero pose.
func Open(path string, poses PoseSource) (*Journal, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	if err := db.Init(&Entry{}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialising journal")
	}
	return &Journal{
		log:   logging.Component("journal"),
		db:    db,
		poses: poses,
		now:   time.Now,
	}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) MoveStarted(m motion.Move) {}

func (j *Journal) MoveStopped(m motion.Move) {
	if _, err := j.Record(m); err != nil {
		j.log.Error().Err(err).Stringer("move", m).Msg("Failed to journal move")
	}
}

// Record stores m and returns the new entry.
func (j *Journal) Record(m motion.Move) (Entry, error) {
	e := Entry{
		Type:         m.Type.String(),
		Distance:     m.Distance,
		Angle:        m.Angle,
		Direction:    m.Direction,
		LinearSpeed:  m.LinearSpeed,
		AngularSpeed: m.AngularSpeed,
		Started:      m.Started,
		Stopped:      j.now(),
	}
	if j.poses != nil {
		p := j.poses.Pose()
		e.X, e.Y, e.Heading = p.X, p.Y, p.Heading
	}
	// JSON has no representation for infinities; a finished move never
	// carries one but guard the database anyway.
	for _, v := range []*float64{&e.Distance, &e.Angle, &e.LinearSpeed, &e.AngularSpeed} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	if err := j.db.Save(&e); err != nil {
		return Entry{}, errors.Wrap(err, "saving journal entry")
	}
	return e, nil
}

// All returns every entry, oldest first.
func (j *Journal) All() ([]Entry, error) {
	var entries []Entry
	err := j.db.All(&entries)
	return entries, errors.Wrap(err, "reading journal")
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	var entries []Entry
	err := j.db.All(&entries, storm.Limit(n), storm.Reverse())
	return entries, errors.Wrap(err, "reading journal")
}

// ByType returns the entries for one kind of move, oldest first.
func (j *Journal) ByType(t motion.MoveType) ([]Entry, error) {
	var entries []Entry
	err := j.db.Find("Type", t.String(), &entries)
	if err == storm.ErrNotFound {
		return nil, nil
	}
	return entries, errors.Wrap(err, "reading journal")
}

// Longer returns the moves that covered more than distance mm in either
// direction.
func (j *Journal) Longer(distance float64) ([]Entry, error) {
	var entries []Entry
	err := j.db.Select(q.Or(q.Gt("Distance", distance), q.Lt("Distance", -distance))).Find(&entries)
	if err == storm.ErrNotFound {
		return nil, nil
	}
	return entries, errors.Wrap(err, "querying journal")
}

func (j *Journal) Totals() (Totals, error) {
	entries, err := j.All()
	if err != nil {
		return Totals{}, err
	}
	t := Totals{Moves: len(entries)}
	for _, e := range entries {
		t.Distance += math.Abs(e.Distance)
		t.Rotation += math.Abs(e.Angle)
	}
	return t, nil
}

// Clear removes every entry.
func (j *Journal) Clear() error {
	if err := j.db.Drop(&Entry{}); err != nil {
		return errors.Wrap(err, "clearing journal")
	}
	return errors.Wrap(j.db.Init(&Entry{}), "initialising journal")
}
