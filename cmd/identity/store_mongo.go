package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUsersCollection is the collection holding account documents.
const MongoUsersCollection = "users"

// mongoUser mirrors the document shape of the users collection.
type mongoUser struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Email         string             `bson:"email"`
	Password      string             `bson:"password"`
	Role          string             `bson:"role"`
	IsActive      bool               `bson:"isActive"`
	LoginAttempts int                `bson:"loginAttempts"`
	LockUntil     *time.Time         `bson:"lockUntil,omitempty"`
	LastLogin     *time.Time         `bson:"lastLogin,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

func (u mongoUser) account() Account {
	return Account{
		ID:            u.ID.Hex(),
		Email:         u.Email,
		PasswordHash:  u.Password,
		Role:          ParseRole(u.Role),
		Active:        u.IsActive,
		LoginAttempts: u.LoginAttempts,
		LockUntil:     utcPtr(u.LockUntil),
		LastLogin:     utcPtr(u.LastLogin),
		CreatedAt:     u.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// MongoStore implements Store over a MongoDB collection.
// The client is owned by the caller.
type MongoStore struct {
	users *mongo.Collection
}

// NewMongoStore binds the store to db.users.
func NewMongoStore(db *mongo.Database) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil mongo database")
	}
	return &MongoStore{users: db.Collection(MongoUsersCollection)}, nil
}

// EnsureIndexes creates the unique email index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("uq_users_email").SetUnique(true),
	})
	return err
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	var u mongoUser
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: NormalizeEmail(email)}}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return u.account(), nil
}

func (s *MongoStore) FindByID(ctx context.Context, accountID string) (Account, error) {
	const op = "identity.FindByID"

	oid, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	var u mongoUser
	err = s.users.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}
	return u.account(), nil
}

func (s *MongoStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	email := NormalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	role := in.Role
	if role == "" {
		role = RoleCustomer
	}

	u := mongoUser{
		ID:        primitive.NewObjectIDFromTimestamp(now),
		Email:     email,
		Password:  in.PasswordHash,
		Role:      string(role),
		IsActive:  true,
		CreatedAt: now.UTC(),
	}
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, err
	}
	return u.account(), nil
}

// RecordLoginFailure uses a compare-and-set on loginAttempts so concurrent
// failures are not lost.
func (s *MongoStore) RecordLoginFailure(ctx context.Context, accountID string, now time.Time, p LockoutPolicy) (Account, error) {
	const op = "identity.RecordLoginFailure"

	oid, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	for attempt := 0; attempt < 5; attempt++ {
		var u mongoUser
		err := s.users.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&u)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		if err != nil {
			return Account{}, err
		}

		acc := u.account()
		acc.LoginAttempts, acc.LockUntil = nextFailureState(acc, now, p)

		var update bson.D
		if acc.LockUntil != nil {
			update = bson.D{{Key: "$set", Value: bson.D{
				{Key: "loginAttempts", Value: acc.LoginAttempts},
				{Key: "lockUntil", Value: *acc.LockUntil},
			}}}
		} else {
			update = bson.D{
				{Key: "$set", Value: bson.D{{Key: "loginAttempts", Value: acc.LoginAttempts}}},
				{Key: "$unset", Value: bson.D{{Key: "lockUntil", Value: ""}}},
			}
		}

		res, err := s.users.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: oid}, {Key: "loginAttempts", Value: u.LoginAttempts}},
			update)
		if err != nil {
			return Account{}, err
		}
		if res.MatchedCount == 1 {
			return acc, nil
		}
	}
	return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "concurrent update contention"}
}

func (s *MongoStore) RecordLoginSuccess(ctx context.Context, accountID string, now time.Time, rehash string) error {
	const op = "identity.RecordLoginSuccess"

	oid, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return NotFoundError{Op: op, Resource: "account"}
	}
	set := bson.D{
		{Key: "loginAttempts", Value: 0},
		{Key: "lastLogin", Value: now.UTC()},
	}
	if rehash != "" {
		set = append(set, bson.E{Key: "password", Value: rehash})
	}
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{
			{Key: "$set", Value: set},
			{Key: "$unset", Value: bson.D{{Key: "lockUntil", Value: ""}}},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.users.Database().Client().Ping(ctx, nil)
}
