package ranks

import (
	"fmt"
	"sort"
)

// Realm tags a rank that is only meaningful on one game-server backend.
// An empty realm means the rank is server-wide.
type Realm string

const RealmTowny Realm = "towny"

// Category groups ranks into a strict per-category hierarchy. An upgrade
// category carries an explicit link to the base category its upgrades act on,
// decided here at definition time rather than inferred from the id at runtime.
type Category struct {
	ID        string
	Name      string
	Order     int
	UpgradeOf string // base category id; empty for base categories
}

// Rank is one purchasable product. Upgrade ranks carry their from/to pair as
// explicit fields; the `from_to_to` id is only a naming convention.
type Rank struct {
	ID           string
	Name         string
	CategoryID   string
	Order        int
	RequiredRank string // rank the buyer must already own (upgrades)
	PriceEnv     string // environment variable holding the Stripe price id
	Realm        Realm
	UpgradeFrom  string
	UpgradeTo    string
	Command      string
}

// IsUpgrade reports whether this rank is an upgrade path between two ranks.
func (r *Rank) IsUpgrade() bool {
	return r.UpgradeTo != ""
}

var Categories = []Category{
	{ID: "regular", Name: "Regular Ranks", Order: 1},
	{ID: "upgrade", Name: "Rank Upgrades", Order: 2, UpgradeOf: "regular"},
	{ID: "towny", Name: "Towny Ranks", Order: 3},
	{ID: "townyUpgrade", Name: "Towny Upgrades", Order: 4, UpgradeOf: "towny"},
}

// upgradeID builds the conventional upgrade rank id.
func upgradeID(from, to string) string {
	return fmt.Sprintf("%s_to_%s", from, to)
}

func regular(id, name string, order int, priceEnv string) Rank {
	return Rank{
		ID:         id,
		Name:       name,
		CategoryID: "regular",
		Order:      order,
		PriceEnv:   priceEnv,
		Command:    "lp user %player% parent add " + id,
	}
}

func regularUpgrade(from, to string, order int, priceEnv string) Rank {
	return Rank{
		ID:           upgradeID(from, to),
		Name:         fmt.Sprintf("%s to %s", from, to),
		CategoryID:   "upgrade",
		Order:        order,
		RequiredRank: from,
		PriceEnv:     priceEnv,
		UpgradeFrom:  from,
		UpgradeTo:    to,
		Command:      "lp user %player% parent add " + to,
	}
}

func towny(id, name string, order int, priceEnv string) Rank {
	return Rank{
		ID:         id,
		Name:       name,
		CategoryID: "towny",
		Order:      order,
		PriceEnv:   priceEnv,
		Realm:      RealmTowny,
		Command:    "lp user %player% parent add " + id,
	}
}

func townyUpgrade(from, to string, order int, priceEnv string) Rank {
	return Rank{
		ID:           upgradeID(from, to),
		Name:         fmt.Sprintf("%s to %s", from, to),
		CategoryID:   "townyUpgrade",
		Order:        order,
		RequiredRank: from,
		PriceEnv:     priceEnv,
		Realm:        RealmTowny,
		UpgradeFrom:  from,
		UpgradeTo:    to,
		Command:      "lp user %player% parent add " + to,
	}
}

var Ranks = []Rank{
	// Regular ranks
	regular("shadow_enchanter", "Shadow Enchanter", 1, "STRIPE_PRICE_SHADOW_ENCHANTER"),
	regular("void_walker", "Void Walker", 2, "STRIPE_PRICE_VOID_WALKER"),
	regular("ethereal_warden", "Ethereal Warden", 3, "STRIPE_PRICE_ETHEREAL_WARDEN"),
	regular("astral_guardian", "Astral Guardian", 4, "STRIPE_PRICE_ASTRAL_GUARDIAN"),

	// Regular rank upgrades
	regularUpgrade("shadow_enchanter", "void_walker", 1, "STRIPE_PRICE_UPGRADE_VOID_WALKER"),
	regularUpgrade("void_walker", "ethereal_warden", 2, "STRIPE_PRICE_UPGRADE_ETHEREAL_WARDEN"),
	regularUpgrade("ethereal_warden", "astral_guardian", 3, "STRIPE_PRICE_UPGRADE_ASTRAL_GUARDIAN"),

	// Towny ranks (realm-specific)
	towny("citizen", "Citizen", 1, "STRIPE_PRICE_CITIZEN"),
	towny("merchant", "Merchant", 2, "STRIPE_PRICE_MERCHANT"),
	towny("councilor", "Councilor", 3, "STRIPE_PRICE_COUNCILOR"),
	towny("mayor", "Mayor", 4, "STRIPE_PRICE_MAYOR"),
	towny("governor", "Governor", 5, "STRIPE_PRICE_GOVERNOR"),
	towny("noble", "Noble", 6, "STRIPE_PRICE_NOBLE"),
	towny("duke", "Duke", 7, "STRIPE_PRICE_DUKE"),
	towny("king", "King", 8, "STRIPE_PRICE_KING"),

	// Towny rank upgrades
	townyUpgrade("citizen", "merchant", 1, "STRIPE_PRICE_UPGRADE_MERCHANT"),
	townyUpgrade("mayor", "noble", 2, "STRIPE_PRICE_UPGRADE_NOBLE"),
	townyUpgrade("noble", "king", 3, "STRIPE_PRICE_UPGRADE_KING"),
}

// GetRankByID returns the rank with the given id, or nil if not found.
func GetRankByID(id string) *Rank {
	for i := range Ranks {
		if Ranks[i].ID == id {
			return &Ranks[i]
		}
	}
	return nil
}

// GetRanksByCategory returns the ranks of a category ordered by tier.
func GetRanksByCategory(categoryID string) []Rank {
	var result []Rank
	for _, rank := range Ranks {
		if rank.CategoryID == categoryID {
			result = append(result, rank)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result
}

// GetCategoryByID returns the category with the given id, or nil if not found.
func GetCategoryByID(id string) *Category {
	for i := range Categories {
		if Categories[i].ID == id {
			return &Categories[i]
		}
	}
	return nil
}

// GetOrderedCategories returns all categories in display order.
func GetOrderedCategories() []Category {
	result := make([]Category, len(Categories))
	copy(result, Categories)
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result
}

// IsUpgradeCategory reports whether a category holds upgrade paths.
func IsUpgradeCategory(categoryID string) bool {
	cat := GetCategoryByID(categoryID)
	return cat != nil && cat.UpgradeOf != ""
}

// GetBaseCategory returns the base category an upgrade category acts on.
func GetBaseCategory(upgradeCategoryID string) string {
	cat := GetCategoryByID(upgradeCategoryID)
	if cat == nil {
		return ""
	}
	return cat.UpgradeOf
}

// GetUpgradeCategory returns the upgrade category for a base category, if any.
func GetUpgradeCategory(baseCategoryID string) string {
	for _, cat := range Categories {
		if cat.UpgradeOf == baseCategoryID {
			return cat.ID
		}
	}
	return ""
}

// GetUpgradeFromTo returns the upgrade rank covering a direct from→to path.
func GetUpgradeFromTo(fromRankID, toRankID string) *Rank {
	for i := range Ranks {
		if Ranks[i].UpgradeFrom == fromRankID && Ranks[i].UpgradeTo == toRankID {
			return &Ranks[i]
		}
	}
	return nil
}
