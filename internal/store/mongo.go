package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/freeeve/chessanalyzer/internal/analysis"
)

const (
	gamesCollection    = "games"
	analysesCollection = "analyses"
	opTimeout          = 5 * time.Second
)

// MongoStore keeps games and analyses in two collections keyed by game id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri, database string, log zerolog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(database),
		log:    log.With().Str("component", "mongo-store").Logger(),
	}
	s.log.Info().Str("database", database).Msg("connected to mongo")
	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) SaveGame(ctx context.Context, g Game) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(gamesCollection).ReplaceOne(ctx, bson.M{"_id": g.ID}, g, opts); err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

func (s *MongoStore) LoadGame(ctx context.Context, gameID string) (*Game, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var g Game
	err := s.db.Collection(gamesCollection).FindOne(ctx, bson.M{"_id": gameID}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	return &g, nil
}

func (s *MongoStore) LoadMoves(ctx context.Context, gameID string) ([]analysis.Move, error) {
	g, err := s.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	sortByPly(g.Moves)
	return g.Moves, nil
}

func (s *MongoStore) SaveAnalysis(ctx context.Context, rec analysis.Record) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(analysesCollection).ReplaceOne(ctx, bson.M{"_id": rec.GameID}, rec, opts); err != nil {
		return fmt.Errorf("save analysis %s: %w", rec.GameID, err)
	}
	return nil
}

func (s *MongoStore) LoadAnalysis(ctx context.Context, gameID string) (*analysis.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec analysis.Record
	err := s.db.Collection(analysesCollection).FindOne(ctx, bson.M{"_id": gameID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis %s: %w", gameID, err)
	}
	return &rec, nil
}

func (s *MongoStore) UpdateGameStatus(ctx context.Context, gameID string, status Status, summary *analysis.Summary) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{
		"status":    status,
		"updatedAt": time.Now().UTC(),
	}
	if summary != nil {
		set["accuracy"] = summary.Accuracy
		set["blunders"] = summary.Blunders
		set["mistakes"] = summary.Mistakes
		set["inaccuracies"] = summary.Inaccuracies
	}

	res, err := s.db.Collection(gamesCollection).UpdateOne(ctx, bson.M{"_id": gameID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update game %s: %w", gameID, err)
	}
	if res.MatchedCount == 0 {
		return ErrGameNotFound
	}
	return nil
}
