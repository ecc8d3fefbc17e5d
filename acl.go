// acl.go - POSIX ACLs, represented as extended attributes
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package xcp

// aclAttrNames are the extended attribute names the Linux/BSD ACL
// implementations use to store the access and default ACL. There is
// no separate wire format: an ACL is just an xattr value under one of
// these two keys.
var aclAttrNames = []string{
	"system.posix_acl_access",
	"system.posix_acl_default",
}

// GetACL returns the subset of 'nm's extended attributes that encode
// POSIX ACLs.
func GetACL(nm string) (Xattr, error) {
	x, err := GetXattr(nm)
	if err != nil {
		return nil, err
	}
	return filterACL(x), nil
}

// CopyACL clones the ACL-related extended attributes from src to dst,
// leaving any other xattr already present on dst untouched.
func CopyACL(dst, src string) error {
	x, err := GetACL(src)
	if err != nil {
		return err
	}
	if len(x) == 0 {
		return nil
	}
	return SetXattr(dst, x)
}

func filterACL(x Xattr) Xattr {
	out := make(Xattr, len(aclAttrNames))
	for _, k := range aclAttrNames {
		if v, ok := x[k]; ok {
			out[k] = v
		}
	}
	return out
}
