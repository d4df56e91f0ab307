package models

import (
	"errors"

	"gorm.io/gorm"
)

// Permission is a single capability bit. Compound values are unions of bits.
type Permission uint8

const (
	PermFollow           Permission = 0x01
	PermComment          Permission = 0x02
	PermWriteArticles    Permission = 0x04
	PermModerateComments Permission = 0x08
	PermAdminister       Permission = 0x80
)

// Has reports whether every bit of perm is present in mask.
func Has(mask, perm Permission) bool {
	return mask&perm == perm
}

const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

type roleSpec struct {
	perms     Permission
	isDefault bool
}

// canonicalRoles is the seed set; exactly one entry is the default.
var canonicalRoles = map[string]roleSpec{
	RoleUser:          {PermFollow | PermComment | PermWriteArticles, true},
	RoleModerator:     {PermFollow | PermComment | PermWriteArticles | PermModerateComments, false},
	RoleAdministrator: {0xff, false},
}

// HasPermission reports whether the role grants every bit of perm.
func (r *Role) HasPermission(perm Permission) bool {
	return Has(r.Permissions, perm)
}

func (r *Role) AddPermission(perm Permission) {
	r.Permissions |= perm
}

func (r *Role) RemovePermission(perm Permission) {
	r.Permissions &^= perm
}

func (r *Role) ResetPermissions() {
	r.Permissions = 0
}

// InsertRoles creates or updates the canonical roles. Running it again finds
// each role by name and overwrites its mask and default flag.
func InsertRoles(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for name, spec := range canonicalRoles {
			var role Role
			err := tx.Where("name = ?", name).First(&role).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			role.Name = name
			role.ResetPermissions()
			role.AddPermission(spec.perms)
			role.Default = spec.isDefault
			if err := tx.Save(&role).Error; err != nil {
				return err
			}
		}
		// Stray roles created outside the seed must not stay default.
		return tx.Model(&Role{}).
			Where("name NOT IN ?", []string{RoleUser, RoleModerator, RoleAdministrator}).
			Update("is_default", false).Error
	})
}
