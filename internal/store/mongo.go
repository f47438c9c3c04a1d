package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"qrattend/internal/model"
)

// Collection names shared with existing deployments of the service.
const (
	MembersCollection    = "members"
	AttendanceCollection = "attendance"
)

// Mongo persists members and attendance as documents.
type Mongo struct {
	client     *mongo.Client
	members    *mongo.Collection
	attendance *mongo.Collection
	opts       Options
}

type memberDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	QRCode    string             `bson:"qrCode"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type attendanceDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	MemberID   primitive.ObjectID `bson:"memberId"`
	MemberName string             `bson:"memberName"`
	Date       string             `bson:"date"`
	Timestamp  time.Time          `bson:"timestamp"`
	Status     string             `bson:"status,omitempty"`
}

// OpenMongo connects to uri and verifies the deployment is reachable.
func OpenMongo(ctx context.Context, uri, database string, timeout time.Duration, opts Options) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	return &Mongo{
		client:     client,
		members:    db.Collection(MembersCollection),
		attendance: db.Collection(AttendanceCollection),
		opts:       opts,
	}, nil
}

// Migrate ensures the unique indexes that back the store's guarantees.
func (s *Mongo) Migrate(ctx context.Context) error {
	_, err := s.members.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "qrCode", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("index members.qrCode: %w", classifyMongo(err))
	}

	if s.opts.UniqueMemberNames {
		_, err = s.members.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
	} else {
		_, err = s.members.Indexes().DropOne(ctx, "name_1")
		if missingIndex(err) {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("index members.name: %w", classifyMongo(err))
	}

	_, err = s.attendance.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "memberId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("index attendance: %w", classifyMongo(err))
	}
	return nil
}

func (s *Mongo) InsertMember(ctx context.Context, m model.Member) (model.Member, error) {
	doc := memberDoc{ID: primitive.NewObjectID(), Name: m.Name, QRCode: m.QRCode, CreatedAt: m.CreatedAt}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := s.members.InsertOne(ctx, doc); err != nil {
		return model.Member{}, classifyMongo(err)
	}
	return doc.toModel(), nil
}

func (s *Mongo) FindMemberByQRCode(ctx context.Context, qrCode string) (model.Member, error) {
	return s.findMember(ctx, bson.M{"qrCode": qrCode})
}

func (s *Mongo) FindMemberByID(ctx context.Context, id string) (model.Member, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Member{}, ErrNotFound
	}
	return s.findMember(ctx, bson.M{"_id": oid})
}

func (s *Mongo) findMember(ctx context.Context, filter bson.M) (model.Member, error) {
	var doc memberDoc
	if err := s.members.FindOne(ctx, filter).Decode(&doc); err != nil {
		return model.Member{}, classifyMongo(err)
	}
	return doc.toModel(), nil
}

func (s *Mongo) ListMembers(ctx context.Context) ([]model.Member, error) {
	cur, err := s.members.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classifyMongo(err)
	}
	var docs []memberDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classifyMongo(err)
	}
	out := make([]model.Member, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *Mongo) FindAttendance(ctx context.Context, memberID, date string) (model.AttendanceRecord, error) {
	oid, err := primitive.ObjectIDFromHex(memberID)
	if err != nil {
		return model.AttendanceRecord{}, ErrNotFound
	}
	var doc attendanceDoc
	if err := s.attendance.FindOne(ctx, bson.M{"memberId": oid, "date": date}).Decode(&doc); err != nil {
		return model.AttendanceRecord{}, classifyMongo(err)
	}
	return doc.toModel(), nil
}

func (s *Mongo) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	oid, err := primitive.ObjectIDFromHex(rec.MemberID)
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("member id %q: %w", rec.MemberID, err)
	}
	doc := attendanceDoc{
		ID:         primitive.NewObjectID(),
		MemberID:   oid,
		MemberName: rec.MemberName,
		Date:       rec.Date,
		Timestamp:  rec.Timestamp,
		Status:     string(rec.Status),
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = string(model.StatusPresent)
	}
	if _, err := s.attendance.InsertOne(ctx, doc); err != nil {
		return model.AttendanceRecord{}, classifyMongo(err)
	}
	return doc.toModel(), nil
}

func (s *Mongo) ListAttendanceForDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	cur, err := s.attendance.Find(ctx, bson.M{"date": date}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classifyMongo(err)
	}
	var docs []attendanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classifyMongo(err)
	}
	out := make([]model.AttendanceRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *Mongo) Ping(ctx context.Context) error {
	return classifyMongo(s.client.Ping(ctx, nil))
}

func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d memberDoc) toModel() model.Member {
	return model.Member{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		QRCode:    d.QRCode,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (d attendanceDoc) toModel() model.AttendanceRecord {
	status := model.Status(d.Status)
	if status == "" {
		// documents written before status existed
		status = model.StatusPresent
	}
	return model.AttendanceRecord{
		ID:         d.ID.Hex(),
		MemberID:   d.MemberID.Hex(),
		MemberName: d.MemberName,
		Date:       d.Date,
		Timestamp:  d.Timestamp.UTC(),
		Status:     status,
	}
}

func classifyMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, mongo.ErrClientDisconnected), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// missingIndex reports IndexNotFound (27) or NamespaceNotFound (26).
func missingIndex(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && (cmdErr.Code == 26 || cmdErr.Code == 27)
}
