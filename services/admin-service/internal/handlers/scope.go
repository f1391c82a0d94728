package handlers

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func isSuper(p model.Principal) bool { return p.Role == model.RoleSuperAdmin }

// ownsOrganisation is true for superadmins and the organisation account.
func ownsOrganisation(p model.Principal, orgID int64) bool {
	return isSuper(p) || (p.Role == model.RoleOrganisation && p.OrganisationID == orgID)
}

// canManagePoint covers the organisation that owns the point and the point's
// own account.
func canManagePoint(p model.Principal, wp model.WorkingPoint) bool {
	if ownsOrganisation(p, wp.OrganisationID) {
		return true
	}
	return p.Role == model.RoleWorkingPoint && p.WorkingPointID == wp.ID
}

// canViewSpecialist adds working points where the specialist is scheduled.
func (h *Handler) canViewSpecialist(ctx context.Context, p model.Principal, sp model.Specialist) (bool, error) {
	if canManageSpecialist(p, sp) {
		return true, nil
	}
	if p.Role == model.RoleWorkingPoint && p.OrganisationID == sp.OrganisationID {
		return h.store.SpecialistWorksAt(ctx, sp.ID, p.WorkingPointID)
	}
	return false, nil
}

func canManageSpecialist(p model.Principal, sp model.Specialist) bool {
	if ownsOrganisation(p, sp.OrganisationID) {
		return true
	}
	return p.Role == model.RoleSpecialist && p.SpecialistID == sp.ID
}

// scopeBookings pins a filter to what the principal may see.
func scopeBookings(p model.Principal, f *model.BookingFilter) {
	switch p.Role {
	case model.RoleOrganisation:
		f.OrganisationID = p.OrganisationID
	case model.RoleWorkingPoint:
		f.OrganisationID = p.OrganisationID
		f.WorkingPointID = p.WorkingPointID
	case model.RoleSpecialist:
		f.OrganisationID = p.OrganisationID
		f.SpecialistID = p.SpecialistID
	}
}

func canSeeBooking(p model.Principal, b model.Booking) bool {
	switch p.Role {
	case model.RoleSuperAdmin:
		return true
	case model.RoleOrganisation:
		return b.OrganisationID == p.OrganisationID
	case model.RoleWorkingPoint:
		return b.WorkingPointID == p.WorkingPointID
	case model.RoleSpecialist:
		return b.SpecialistID == p.SpecialistID
	}
	return false
}
