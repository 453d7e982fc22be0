package db

// ScoreWrite decides whether an upsert writes the score field.
// existing is nil when the stored record has no score yet (or does not exist).
// A zero score never overwrites a stored one, so a re-login or profile sync
// cannot wipe accumulated progress.
func ScoreWrite(patch *int64, existing *int64) (int64, bool) {
	if patch == nil {
		return 0, false
	}
	if *patch != 0 || existing == nil {
		return *patch, true
	}
	return 0, false
}

// ApplyUserPatch copies the present patch fields onto user and resolves the
// score with ScoreWrite. created marks the creation path where omitted fields
// keep their zero values and the score defaults to 0.
func ApplyUserPatch(user *UserAccount, existingScore *int64, created bool, patch UserPatch) (scoreWritten bool) {
	user.ID = patch.ID
	if patch.Username != nil {
		user.Username = *patch.Username
	}
	if patch.DisplayName != nil {
		user.DisplayName = *patch.DisplayName
	}
	if patch.ProfileImageURL != nil {
		user.ProfileImageURL = *patch.ProfileImageURL
	}

	if v, ok := ScoreWrite(patch.GreenScore, existingScore); ok {
		user.GreenScore = v
		return true
	}
	if created || existingScore == nil {
		user.GreenScore = 0
		return created
	}
	user.GreenScore = *existingScore
	return false
}
