package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stevemurr/pokedex-api/model"
)

// MongoStore keeps one document per Pokemon, combat and quiz question.
//
// Collections:
//
//	pokemons   unique index on id
//	combats    unique index on id, index on (createdAt, id)
//	quizz      opaque documents
//
// Every call is bounded by timeout on top of the caller's context.
type MongoStore struct {
	client    *mongo.Client
	pokemons  *mongo.Collection
	combats   *mongo.Collection
	questions *mongo.Collection
	assetBase string
	timeout   time.Duration

	// mu serializes id assignment and base merges inside this process. The
	// unique indexes reject id collisions with other processes.
	mu sync.Mutex
}

func NewMongoStore(ctx context.Context, uri, database, assetBase string, timeout time.Duration) (*MongoStore, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	if err := client.Ping(cctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}

	db := client.Database(database)
	s := &MongoStore{
		client:    client,
		pokemons:  db.Collection(collPokemons),
		combats:   db.Collection(collCombats),
		questions: db.Collection(collQuestions),
		assetBase: assetBase,
		timeout:   timeout,
	}
	if err := s.ensureIndexes(cctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.pokemons.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "id", Value: 1}}, Options: unique,
	}); err != nil {
		return errors.Wrap(err, "index pokemons.id")
	}
	if _, err := s.combats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "id", Value: -1}}},
	}); err != nil {
		return errors.Wrap(err, "index combats")
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// wrap maps driver failures onto the store errors.
func wrap(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case errors.Is(err, mongo.ErrClientDisconnected):
		return ErrUnavailable
	}
	return errors.Wrap(err, msg)
}

var (
	byIDAsc   = bson.D{{Key: "id", Value: 1}}
	byIDDesc  = bson.D{{Key: "id", Value: -1}}
	newest    = bson.D{{Key: "createdAt", Value: -1}, {Key: "id", Value: -1}}
	onlyIDKey = bson.D{{Key: "id", Value: 1}, {Key: "_id", Value: 0}}
)

type idDoc struct {
	ID int `bson:"id"`
}

// edgeID returns the id of the first document of coll in sort order, or
// ErrEmptyStore.
func edgeID(ctx context.Context, coll *mongo.Collection, sort bson.D) (int, error) {
	var doc idDoc
	err := coll.FindOne(ctx, bson.D{}, options.FindOne().SetSort(sort).SetProjection(onlyIDKey)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrEmptyStore
	}
	if err != nil {
		return 0, wrap(err, "find id bound in "+coll.Name())
	}
	return doc.ID, nil
}

func (s *MongoStore) List(ctx context.Context) ([]model.Pokemon, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.pokemons.Find(ctx, bson.D{}, options.Find().SetSort(byIDAsc))
	if err != nil {
		return nil, wrap(err, "list pokemons")
	}
	result := []model.Pokemon{}
	if err := cur.All(ctx, &result); err != nil {
		return nil, wrap(err, "decode pokemons")
	}
	return result, nil
}

func (s *MongoStore) Get(ctx context.Context, id int) (*model.Pokemon, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var p model.Pokemon
	if err := s.pokemons.FindOne(ctx, bson.M{"id": id}).Decode(&p); err != nil {
		return nil, wrap(err, "get pokemon")
	}
	return &p, nil
}

func (s *MongoStore) Create(ctx context.Context, p model.Pokemon) (*model.Pokemon, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := edgeID(ctx, s.pokemons, byIDDesc)
	if err != nil && err != ErrEmptyStore {
		return nil, err
	}
	created, err := prepareCreate(p, last+1, s.assetBase)
	if err != nil {
		return nil, err
	}
	if _, err := s.pokemons.InsertOne(ctx, created); err != nil {
		return nil, wrap(err, "insert pokemon")
	}
	return &created, nil
}

// patchUpdate builds the $set document for patch. Name locales are set one
// by one so the stored locale map is merged. Stat keys contain dots and cannot
// be addressed by path, so base is set whole from the already merged value.
func patchUpdate(patch model.PokemonPatch, base *model.Base) bson.D {
	set := bson.D{}
	for locale, v := range patch.Name {
		set = append(set, bson.E{Key: "name." + locale, Value: v})
	}
	if len(patch.Type) > 0 {
		set = append(set, bson.E{Key: "type", Value: patch.Type})
	}
	if base != nil {
		set = append(set, bson.E{Key: "base", Value: base})
	}
	if patch.Image != nil {
		set = append(set, bson.E{Key: "image", Value: *patch.Image})
	}
	return bson.D{{Key: "$set", Value: set}}
}

func (s *MongoStore) Update(ctx context.Context, id int, patch model.PokemonPatch) (*model.Pokemon, error) {
	if err := model.ValidatePatch(patch); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.Get(ctx, id)
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var base *model.Base
	if patch.Base != nil && !patch.Base.Empty() {
		s.mu.Lock()
		defer s.mu.Unlock()
		var current model.Pokemon
		if err := s.pokemons.FindOne(ctx, bson.M{"id": id}).Decode(&current); err != nil {
			return nil, wrap(err, "get pokemon")
		}
		current.Apply(model.PokemonPatch{Base: patch.Base})
		base = current.Base
	}

	var p model.Pokemon
	err := s.pokemons.FindOneAndUpdate(ctx, bson.M{"id": id}, patchUpdate(patch, base),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return nil, wrap(err, "update pokemon")
	}
	return &p, nil
}

func (s *MongoStore) Delete(ctx context.Context, id int) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.pokemons.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return wrap(err, "delete pokemon")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) MinID(ctx context.Context) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return edgeID(ctx, s.pokemons, byIDAsc)
}

func (s *MongoStore) MaxID(ctx context.Context) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return edgeID(ctx, s.pokemons, byIDDesc)
}

func (s *MongoStore) ListCombats(ctx context.Context) ([]model.Combat, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.combats.Find(ctx, bson.D{}, options.Find().SetSort(byIDAsc))
	if err != nil {
		return nil, wrap(err, "list combats")
	}
	result := []model.Combat{}
	if err := cur.All(ctx, &result); err != nil {
		return nil, wrap(err, "decode combats")
	}
	return result, nil
}

func (s *MongoStore) SaveCombat(ctx context.Context, c model.Combat) (*model.Combat, error) {
	if err := model.ValidateCombat(c); err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := edgeID(ctx, s.combats, byIDDesc)
	if err != nil && err != ErrEmptyStore {
		return nil, err
	}
	c = c.Clone()
	c.ID = last + 1
	c.CreatedAt = nowUTC()
	if _, err := s.combats.InsertOne(ctx, c); err != nil {
		return nil, wrap(err, "insert combat")
	}
	return &c, nil
}

// hpFor sets side.base.HP to hp when that side is pokemonID and keeps it
// otherwise.
func hpFor(side string, pokemonID, hp int) bson.E {
	return bson.E{Key: side + ".base.HP", Value: bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$" + side + ".id", pokemonID}}},
		hp,
		"$" + side + ".base.HP",
	}}}}
}

// ApplyDamage is a single pipeline update on one combat document, so both
// sides of a mirror match change together or not at all.
func (s *MongoStore) ApplyDamage(ctx context.Context, combatID, pokemonID, hp int) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "first.id", Value: pokemonID}},
		bson.D{{Key: "second.id", Value: pokemonID}},
	}}}
	if combatID > 0 {
		filter = append(filter, bson.E{Key: "id", Value: combatID})
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{hpFor("first", pokemonID, hp), hpFor("second", pokemonID, hp)}}},
	}
	res := s.combats.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetSort(newest))
	return wrap(res.Err(), "apply damage")
}

func (s *MongoStore) VersusImage(ctx context.Context) (string, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var doc struct {
		Versus string `bson:"versus"`
	}
	filter := bson.M{"versus": bson.M{"$exists": true, "$nin": bson.A{nil, ""}}}
	err := s.combats.FindOne(ctx, filter, options.FindOne().SetSort(newest)).Decode(&doc)
	if err != nil {
		return "", wrap(err, "versus image")
	}
	return doc.Versus, nil
}

// ListQuestions renders each stored document as relaxed extended JSON, so
// the opaque questions come back as plain JSON values.
func (s *MongoStore) ListQuestions(ctx context.Context) ([]model.QuizQuestion, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
	cur, err := s.questions.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, wrap(err, "list questions")
	}
	defer cur.Close(ctx)

	result := []model.QuizQuestion{}
	for cur.Next(ctx) {
		b, err := bson.MarshalExtJSON(cur.Current, false, false)
		if err != nil {
			return nil, errors.Wrap(err, "render question")
		}
		var q model.QuizQuestion
		if err := json.Unmarshal(b, &q); err != nil {
			return nil, errors.Wrap(err, "decode question")
		}
		result = append(result, q)
	}
	return result, wrap(cur.Err(), "iterate questions")
}

func (s *MongoStore) SeedPokemons(ctx context.Context, ps []model.Pokemon) error {
	if len(ps) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(ps))
	for _, p := range ps {
		if p.ID <= 0 {
			return &model.ValidationError{Fields: []string{"id"}}
		}
		if err := model.Validate(p); err != nil {
			return errors.Wrapf(err, "pokemon %d", p.ID)
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": p.ID}).
			SetReplacement(p).
			SetUpsert(true))
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.pokemons.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	return wrap(err, "seed pokemons")
}

func (s *MongoStore) SeedQuestions(ctx context.Context, qs []model.QuizQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	docs := make([]any, len(qs))
	for i, q := range qs {
		docs[i] = q
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.questions.InsertMany(ctx, docs)
	return wrap(err, "seed questions")
}

var _ Store = (*MongoStore)(nil)
