package api

import (
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

var initialSuggestions = []string{
	"Qui étaient les seigneurs d'Enghien au Moyen Âge ?",
	"Comment était organisée l'administration de la ville ?",
	"Quelles étaient les principales foires et marchés d'Enghien ?",
	"Parle-moi de l'église paroissiale d'Enghien",
	"Quels corps de métiers existaient à Enghien ?",
	"Quelle est l'origine du nom Enghien ?",
	"Comment fonctionnait la justice à Enghien ?",
	"Quelles institutions de bienfaisance existaient ?",
}

// followUps groups follow-up questions by topic.
var followUps = map[string][]string{
	"seigneurs": {
		"Quels étaient les liens entre les seigneurs d'Enghien et la maison d'Arenberg ?",
		"Comment se transmettait le titre de seigneur d'Enghien ?",
		"Quels châteaux possédaient les seigneurs ?",
	},
	"administration": {
		"Quel était le rôle du bailli d'Enghien ?",
		"Comment étaient élus les échevins ?",
		"Quels étaient les pouvoirs du mayeur ?",
	},
	"commerce": {
		"Quand se tenaient les foires annuelles ?",
		"Quels produits étaient vendus aux marchés ?",
		"La ville avait-elle des privilèges commerciaux ?",
	},
	"religion": {
		"Quand l'église paroissiale a-t-elle été construite ?",
		"Y avait-il des couvents à Enghien ?",
		"Parle-moi des confréries religieuses",
	},
	"metiers": {
		"Comment fonctionnaient les corporations de métiers ?",
		"Quels métiers étaient les plus importants ?",
		"Y avait-il des manufactures à Enghien ?",
	},
}

var topicOrder = []string{"seigneurs", "administration", "commerce", "religion", "metiers"}

type suggester struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSuggester() *suggester {
	return &suggester{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// pick returns n entries of pool in random order without modifying pool.
func (s *suggester) pick(pool []string, n int) []string {
	out := append([]string(nil), pool...)
	s.mu.Lock()
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()
	if n < len(out) {
		out = out[:n]
	}
	return out
}

func (s *suggester) initial() []string { return s.pick(initialSuggestions, 5) }

// followUp returns three questions for topic, or three from any topic when
// topic is unknown.
func (s *suggester) followUp(topic string) []string {
	if pool, ok := followUps[topic]; ok {
		return s.pick(pool, 3)
	}
	var all []string
	for _, t := range topicOrder {
		all = append(all, followUps[t]...)
	}
	return s.pick(all, 3)
}

func (h *handlers) initialSuggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suggestions": h.suggestions.initial()})
}

func (h *handlers) followUpSuggestions(c *gin.Context) {
	var req struct {
		LastTopic string `json:"lastTopic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"suggestions": initialSuggestions[:3]})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": h.suggestions.followUp(req.LastTopic)})
}
