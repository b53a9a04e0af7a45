// Package types holds the JSON wire protocol shared by the server and clients.
//
// Client -> Session
// JOIN:      playerId                       (WELCOME replies with the authoritative id)
// CREATE:    playerId, name
// JOINLOBBY: code, playerId, name
// READY:     playerId, ready, code
// START:     {}
// PATH:      path, playerId                 (advisory, turn holder only)
// SUBMIT:    word, path, score, playerId    (score is advisory)
// ENDTURN:   playerId
// LEAVE:     playerId
//
// Session -> Client
// WELCOME:     playerId
// CREATED:     code, players[4], ready[4]
// JOINED:      code, players[4], ready[4]
// READYUPDATE: players[4], ready[4]
// LOBBY_STATE: code, state, players[4], ready[4]
// BOARD:       board, round
// TURN:        playerId
// OPPPATH:     path, playerId
// OPPSUBMIT:   word, score, playerId
// ACCEPTED:    word, score, playerId        (to the submitter only)
// ROUND:       round
// MATCH_STATE: turn, round, scores, players[]
// MATCHEND:    reason, scores, winners
// ERROR:       error{code, kind, message}   (to the requester only)
//
// Every lobby and match transition is followed by a full snapshot
// (LOBBY_STATE or MATCH_STATE), never a diff.
package types
