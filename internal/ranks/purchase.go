package ranks

// isRankIncludedIn reports whether owning higherRankID already covers
// targetRankID. A rank covers itself and every lower-order rank in the same
// category.
func isRankIncludedIn(targetRankID, higherRankID string) bool {
	if targetRankID == higherRankID {
		return true
	}

	targetRank := GetRankByID(targetRankID)
	higherRank := GetRankByID(higherRankID)
	if targetRank == nil || higherRank == nil {
		return false
	}

	// Only compare ranks within the same category
	if targetRank.CategoryID != higherRank.CategoryID {
		return false
	}

	return higherRank.Order > targetRank.Order
}

// CanPurchaseRank decides whether a buyer holding ownedRanks may purchase
// rankID. Gifts bypass all ownership checks: the recipient's ranks are not
// known at purchase time.
func CanPurchaseRank(rankID string, ownedRanks []string, isGift bool) bool {
	if isGift {
		return true
	}

	rank := GetRankByID(rankID)
	if rank == nil {
		return false
	}

	// Upgrades require the source rank and must not target a tier the buyer
	// already holds in the base category
	if rank.RequiredRank != "" {
		if !containsRank(ownedRanks, rank.RequiredRank) {
			return false
		}

		if rank.IsUpgrade() {
			baseCategory := GetBaseCategory(rank.CategoryID)
			for _, ownedRankID := range ownedRanks {
				ownedRank := GetRankByID(ownedRankID)
				if ownedRank == nil || ownedRank.CategoryID != baseCategory {
					continue
				}
				if isRankIncludedIn(rank.UpgradeTo, ownedRankID) {
					// Already owns the destination tier or higher
					return false
				}
			}
		}

		return true
	}

	if containsRank(ownedRanks, rankID) {
		return false
	}

	// A base rank is not purchasable when a higher rank in the same category
	// already subsumes it
	if !IsUpgradeCategory(rank.CategoryID) {
		for _, ownedRankID := range ownedRanks {
			ownedRank := GetRankByID(ownedRankID)
			if ownedRank == nil || ownedRank.CategoryID != rank.CategoryID {
				continue
			}
			if ownedRankID != rankID && isRankIncludedIn(rankID, ownedRankID) {
				return false
			}
		}
	}

	return true
}

func containsRank(rankIDs []string, rankID string) bool {
	for _, id := range rankIDs {
		if id == rankID {
			return true
		}
	}
	return false
}
