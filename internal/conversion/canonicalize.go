package conversion

// canonicalize collapses the indirection the LSIF graph allows. Documents
// sharing a path are merged, reference results linked by item edges fold
// into one result, result set chains flatten onto the ranges that head
// them, and every range's moniker set is expanded through nextMoniker
// links. Afterward each range carries its own result ids and monikers and
// the next edges are gone.
func canonicalize(state *State) {
	canonicalizeDocuments(state)
	canonicalizeReferenceResults(state)
	canonicalizeResultSets(state)
	canonicalizeRanges(state)
	canonicalizeMonikers(state)
}

func canonicalizeDocuments(state *State) {
	byPath := map[string][]ID{}
	for _, id := range sortIDs(documentIDs(state)) {
		path := state.DocumentData[id]
		byPath[path] = append(byPath[path], id)
	}

	for _, ids := range byPath {
		if len(ids) <= 1 {
			continue
		}

		canonical := ids[0]
		for _, duplicate := range ids[1:] {
			if set := state.Contains.Get(duplicate); set != nil {
				state.Contains.GetOrCreate(canonical).AddAll(set)
			}
			state.Contains.Delete(duplicate)
			delete(state.DocumentData, duplicate)

			for _, documentMap := range state.DefinitionData {
				documentMap.ReplaceKey(duplicate, canonical)
			}
			for _, documentMap := range state.ReferenceData {
				documentMap.ReplaceKey(duplicate, canonical)
			}
		}
	}
}

func canonicalizeReferenceResults(state *State) {
	canonicalIDs := map[ID]ID{}

	for _, id := range sortIDs(referenceResultIDs(state)) {
		if _, ok := canonicalIDs[id]; ok {
			continue
		}

		members := state.LinkedReferenceResults.ExtractSet(id).Keys()
		if len(members) == 1 {
			continue
		}

		canonical := members[0]
		for _, member := range members {
			canonicalIDs[member] = canonical
		}

		canonicalMap := state.ReferenceData[canonical]
		for _, member := range members[1:] {
			memberMap, ok := state.ReferenceData[member]
			if !ok {
				continue
			}

			for _, documentID := range memberMap.SortedKeys() {
				canonicalMap.GetOrCreate(documentID).AddAll(memberMap.Get(documentID))
			}
			delete(state.ReferenceData, member)
		}
	}

	for id, r := range state.RangeData {
		if canonical, ok := canonicalIDs[r.ReferenceResultID]; ok && canonical != r.ReferenceResultID {
			r.ReferenceResultID = canonical
			state.RangeData[id] = r
		}
	}
	for id, resultSet := range state.ResultSetData {
		if canonical, ok := canonicalIDs[resultSet.ReferenceResultID]; ok && canonical != resultSet.ReferenceResultID {
			resultSet.ReferenceResultID = canonical
			state.ResultSetData[id] = resultSet
		}
	}
}

func canonicalizeResultSets(state *State) {
	visited := NewIDSet()
	for _, id := range sortIDs(resultSetIDs(state)) {
		canonicalizeResultSetChain(state, id, visited, NewIDSet())
	}
}

// canonicalizeResultSetChain makes the result set absorb everything
// reachable through its next chain, then drops its chain link.
func canonicalizeResultSetChain(state *State, id ID, visited, chain *IDSet) {
	if visited.Contains(id) {
		return
	}

	nextID, ok := state.NextData[id]
	if !ok {
		visited.Add(id)
		return
	}

	// A next cycle holds no data this set has not already absorbed.
	if !chain.Contains(nextID) {
		chain.Add(id)
		canonicalizeResultSetChain(state, nextID, visited, chain)
	}

	if next, ok := state.ResultSetData[nextID]; ok {
		resultSet := state.ResultSetData[id]
		mergeNextResults(&resultSet.DefinitionResultID, &resultSet.ReferenceResultID, &resultSet.HoverResultID, next)
		state.ResultSetData[id] = resultSet

		if monikers := state.Monikers.Get(nextID); monikers != nil {
			state.Monikers.GetOrCreate(id).AddAll(monikers)
		}
	}

	delete(state.NextData, id)
	visited.Add(id)
}

func canonicalizeRanges(state *State) {
	for id, r := range state.RangeData {
		nextID, ok := state.NextData[id]
		if !ok {
			continue
		}

		if next, ok := state.ResultSetData[nextID]; ok {
			mergeNextResults(&r.DefinitionResultID, &r.ReferenceResultID, &r.HoverResultID, next)
			state.RangeData[id] = r

			if monikers := state.Monikers.Get(nextID); monikers != nil {
				state.Monikers.GetOrCreate(id).AddAll(monikers)
			}
		}

		delete(state.NextData, id)
	}
}

// mergeNextResults fills unset result ids from the next target. A result id
// set directly on the source wins over the inherited one.
func mergeNextResults(definitionResultID, referenceResultID, hoverResultID *ID, next ResultSet) {
	if *definitionResultID == "" {
		*definitionResultID = next.DefinitionResultID
	}
	if *referenceResultID == "" {
		*referenceResultID = next.ReferenceResultID
	}
	if *hoverResultID == "" {
		*hoverResultID = next.HoverResultID
	}
}

func canonicalizeMonikers(state *State) {
	classes := map[ID]*IDSet{}

	for _, id := range state.Monikers.SortedKeys() {
		if _, ok := state.RangeData[id]; !ok {
			// Result set monikers were already folded onto ranges.
			continue
		}

		expanded := NewIDSet()
		for _, monikerID := range state.Monikers.Get(id).Keys() {
			class, ok := classes[monikerID]
			if !ok {
				class = state.LinkedMonikers.ExtractSet(monikerID)
				for _, member := range class.Keys() {
					classes[member] = class
				}
			}
			expanded.AddAll(class)
		}

		state.Monikers.Set(id, expanded)
	}
}

func documentIDs(state *State) []ID {
	ids := make([]ID, 0, len(state.DocumentData))
	for id := range state.DocumentData {
		ids = append(ids, id)
	}
	return ids
}

func resultSetIDs(state *State) []ID {
	ids := make([]ID, 0, len(state.ResultSetData))
	for id := range state.ResultSetData {
		ids = append(ids, id)
	}
	return ids
}

func referenceResultIDs(state *State) []ID {
	ids := make([]ID, 0, len(state.ReferenceData))
	for id := range state.ReferenceData {
		ids = append(ids, id)
	}
	return ids
}
