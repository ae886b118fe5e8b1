package patient

import "time"

// ResolveMerge computes the writes that fold source into target. It performs
// no I/O and does not modify its arguments.
//
// Lists (addresses, emergency contacts) are concatenated target first.
// Phones and emails are unioned in first-seen order. Sparse attributes keep
// the target's value on a key collision; the source only fills gaps.
// Parent names always stay as the target has them.
// Both records get the actor's last-updated stamp; identity fields are never
// part of either patch.
func ResolveMerge(target, source Patient, actor Actor, now time.Time) (MergeTargetPatch, MergeSourcePatch) {
	actor = actor.Normalize()

	targetPatch := MergeTargetPatch{
		AddressInfo: concatAddresses(target.AddressInfo, source.AddressInfo),
		ContactInfo: ContactInfo{
			Phones: unionStrings(target.ContactInfo.Phones, source.ContactInfo.Phones),
			Emails: unionStrings(target.ContactInfo.Emails, source.ContactInfo.Emails),
		},
		FamilyInfo: FamilyInfo{
			FatherName:        target.FamilyInfo.FatherName,
			MotherName:        target.FamilyInfo.MotherName,
			EmergencyContacts: concatContacts(target.FamilyInfo.EmergencyContacts, source.FamilyInfo.EmergencyContacts),
		},
		ClinicalInfo: fillAttributes(target.ClinicalInfo, source.ClinicalInfo),
		PayerInfo:    fillAttributes(target.PayerInfo, source.PayerInfo),
		AuditInfo:    target.AuditInfo.Stamp(actor, now),
	}

	sourcePatch := MergeSourcePatch{
		MergedToID: target.ID,
		AuditInfo:  source.AuditInfo.Stamp(actor, now),
	}

	return targetPatch, sourcePatch
}

func concatAddresses(target, source AddressList) AddressList {
	out := make(AddressList, 0, len(target)+len(source))
	out = append(out, target...)
	return append(out, source...)
}

func concatContacts(target, source []EmergencyContact) []EmergencyContact {
	out := make([]EmergencyContact, 0, len(target)+len(source))
	out = append(out, target...)
	return append(out, source...)
}

func unionStrings(target, source []string) []string {
	seen := make(map[string]struct{}, len(target)+len(source))
	out := make([]string, 0, len(target)+len(source))
	for _, list := range [][]string{target, source} {
		for _, v := range list {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func fillAttributes(target, source Attributes) Attributes {
	out := make(Attributes, len(target)+len(source))
	for k, v := range source {
		out[k] = v
	}
	for k, v := range target {
		out[k] = v
	}
	return out
}

