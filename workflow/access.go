package workflow

import "labelapi/models"

// HasGlobalRole Check if the user holds the role without a subject
func HasGlobalRole(user *models.User, role string) bool {
	if user == nil || !user.Enabled {
		return false
	}
	for _, r := range user.Roles {
		if g, ok := r.Grant().(models.GlobalGrant); ok && g.Name == role {
			return true
		}
	}
	return false
}

// HasScopedRole Check if the user holds the role on exactly this subject
func HasScopedRole(user *models.User, role string, subjectType string, subjectID uint) bool {
	if user == nil || !user.Enabled {
		return false
	}
	for _, r := range user.Roles {
		g, ok := r.Grant().(models.ScopedGrant)
		if ok && g.Name == role && g.SubjectType == subjectType && g.SubjectID == subjectID {
			return true
		}
	}
	return false
}

// HasAccessToImage Check if the user labels any campaign the image is part of.
// The campaign links of the image must be loaded.
func HasAccessToImage(user *models.User, image *models.Image) bool {
	if image == nil {
		return false
	}
	for _, link := range image.CampaignImages {
		if HasScopedRole(user, models.RoleLabeler, models.SubjectCampaign, link.CampaignID) {
			return true
		}
	}
	return false
}

func requireAdmin(user *models.User) error {
	if !HasGlobalRole(user, models.RoleImageAdmin) {
		return unauthorized()
	}
	return nil
}

// requireCampaignAccess Admins and the labelers of the campaign pass
func requireCampaignAccess(user *models.User, campaignID uint) error {
	if HasGlobalRole(user, models.RoleImageAdmin) ||
		HasScopedRole(user, models.RoleLabeler, models.SubjectCampaign, campaignID) {
		return nil
	}
	return unauthorized()
}
