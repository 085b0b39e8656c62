// Package handler provides the HTTP handlers for the Pokedex API.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/stevemurr/pokedex-api/model"
	"github.com/stevemurr/pokedex-api/schema"
	"github.com/stevemurr/pokedex-api/store"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store store.Store
}

// New creates a Handler backed by s.
func New(s store.Store) *Handler {
	return &Handler{store: s}
}

// Register wires every route onto r.
func (h *Handler) Register(r gin.IRouter) {
	// Status
	r.GET("/", h.root)
	r.GET("/health", h.health)

	// Catalogue
	r.GET("/api/pokemons", h.listPokemons)
	r.GET("/api/pokemons/:id", h.getPokemon)
	r.POST("/api/create", h.createPokemon)
	r.PUT("/api/update", h.updatePokemon)
	r.DELETE("/api/delete", h.deletePokemon)
	r.GET("/api/firstId", h.firstID)
	r.GET("/api/lastId", h.lastID)

	// Combats
	r.GET("/api/combats", h.listCombats)
	r.POST("/api/saveCombat", h.saveCombat)
	r.PUT("/api/updateHP", h.updateHP)
	r.GET("/api/getVersusImage", h.versusImage)

	// Quiz
	r.GET("/api/getQuizzQuestions", h.quizQuestions)
}

// ---------- helpers ----------

// fail maps err onto a status code and writes the error body.
func fail(c *gin.Context, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "pokemon not found"})
	default:
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// readDoc decodes the request body as a JSON object. An empty body yields an
// empty document.
func readDoc(c *gin.Context) (map[string]any, error) {
	doc := map[string]any{}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return doc, nil
	}
	if err := c.ShouldBindJSON(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return doc, nil
}

// takeID removes key from doc and returns it as a positive int. ok is false
// when the key is absent or empty.
func takeID(doc map[string]any, key string) (id int, ok bool, err error) {
	v, present := doc[key]
	delete(doc, key)
	if !present || v == nil || v == "" {
		return 0, false, nil
	}
	id, err = schema.Int(v)
	if err != nil || id <= 0 {
		return 0, true, &model.ValidationError{Fields: []string{key}}
	}
	return id, true, nil
}

// legacyQuery turns the query-string form of /api/create into a document.
// Repeated type values become a list.
func legacyQuery(q url.Values) map[string]any {
	doc := map[string]any{}
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		if k == "type" && len(vs) > 1 {
			types := make([]any, len(vs))
			for i, v := range vs {
				types[i] = v
			}
			doc[k] = types
			continue
		}
		doc[k] = vs[0]
	}
	return doc
}

// ---------- status endpoints ----------

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "Pokedex API",
		"message": "bienvenue sur l'API Pokémon",
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ---------- catalogue ----------

func (h *Handler) listPokemons(c *gin.Context) {
	ps, err := h.store.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pokemons": ps})
}

func (h *Handler) getPokemon(c *gin.Context) {
	id, err := schema.Int(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return
	}
	p, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pokemon": p})
}

func (h *Handler) createPokemon(c *gin.Context) {
	doc, err := readDoc(c)
	if err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if len(doc) == 0 {
		doc = legacyQuery(c.Request.URL.Query())
	}
	delete(doc, "id")

	var p model.Pokemon
	if err := schema.Decode(doc, &p); err != nil {
		fail(c, err)
		return
	}
	created, err := h.store.Create(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Pokemon created",
		"pokemon": created,
	})
}

func (h *Handler) updatePokemon(c *gin.Context) {
	doc, err := readDoc(c)
	if err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	id, ok, err := takeID(doc, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		badRequest(c, "id is required")
		return
	}

	var patch model.PokemonPatch
	if err := schema.Decode(doc, &patch); err != nil {
		fail(c, err)
		return
	}
	p, err := h.store.Update(c.Request.Context(), id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Pokemon %d updated", id),
		"pokemon": p,
	})
}

func (h *Handler) deletePokemon(c *gin.Context) {
	doc, err := readDoc(c)
	if err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	if _, present := doc["id"]; !present {
		if q := c.Query("id"); q != "" {
			doc["id"] = q
		}
	}
	id, ok, err := takeID(doc, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		badRequest(c, "id is required")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Pokemon %d deleted", id)})
}

func (h *Handler) firstID(c *gin.Context) {
	id, err := h.store.MinID(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) lastID(c *gin.Context) {
	id, err := h.store.MaxID(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// ---------- combats ----------

func (h *Handler) listCombats(c *gin.Context) {
	cs, err := h.store.ListCombats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"combats": cs})
}

func (h *Handler) saveCombat(c *gin.Context) {
	doc, err := readDoc(c)
	if err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	combat, err := schema.DecodeCombat(doc)
	if err != nil {
		fail(c, err)
		return
	}
	saved, err := h.store.SaveCombat(c.Request.Context(), combat)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Combat saved", "id": saved.ID})
}

func (h *Handler) updateHP(c *gin.Context) {
	doc, err := readDoc(c)
	if err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	combatID, _, err := takeID(doc, "combatId")
	if err != nil {
		fail(c, err)
		return
	}
	pokemonID, ok, err := takeID(doc, "id")
	if err != nil {
		fail(c, err)
		return
	}
	raw, present := doc["newHP"]
	if !ok || !present || raw == nil || raw == "" {
		badRequest(c, "id and newHP are required")
		return
	}
	hp, err := schema.Int(raw)
	if err != nil || hp < 0 {
		fail(c, &model.ValidationError{Fields: []string{"newHP"}})
		return
	}
	if err := h.store.ApplyDamage(c.Request.Context(), combatID, pokemonID, hp); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "combat not found"})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("HP of Pokemon %d updated", pokemonID)})
}

func (h *Handler) versusImage(c *gin.Context) {
	v, err := h.store.VersusImage(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no versus image"})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versus": v})
}

// ---------- quiz ----------

func (h *Handler) quizQuestions(c *gin.Context) {
	qs, err := h.store.ListQuestions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": qs})
}
